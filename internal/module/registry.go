package module

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/message"
)

// CommandPrefix marks a message as a command.
const CommandPrefix = "/"

type boundCommand struct {
	module Module
	cmd    Command
}

// Registry holds the registered modules and dispatches inbound messages to
// them. Command names are globally unique: the first module to register a
// name keeps it, later collisions are logged and dropped.
type Registry struct {
	mu       sync.Mutex
	modules  []Module // registration order drives trigger precedence
	commands map[string]boundCommand
	logger   *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]boundCommand),
		logger:   logging.WithComponent("dispatch"),
	}
}

// Register adds a module and folds its commands into the command table.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modules = append(r.modules, m)
	for _, cmd := range m.Commands() {
		name := strings.ToLower(cmd.Name)
		if existing, ok := r.commands[name]; ok {
			r.logger.Warn("command already registered, skipping",
				"command", name, "module", m.ID(), "owner", existing.module.ID())
			continue
		}
		r.commands[name] = boundCommand{module: m, cmd: cmd}
	}
	r.logger.Info("registered module", "module", m.ID(), "commands", len(m.Commands()))
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// IsCommand reports whether the text is a slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, CommandPrefix)
}

// ParseCommand splits a command message into its lowercased name and
// whitespace-separated arguments. A bare prefix yields an empty name.
func ParseCommand(text string) (string, []string) {
	content := strings.TrimPrefix(text, CommandPrefix)
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return "", nil
	}
	if len(parts) == 1 {
		return strings.ToLower(parts[0]), nil
	}
	return strings.ToLower(parts[0]), parts[1:]
}

// Dispatch routes a message to at most one module. The returned bool reports
// whether a module claimed the message; false sends it on to the generative
// fallback. A command message is never trigger-matched, even when its body
// would match a pattern.
func (r *Registry) Dispatch(ctx context.Context, msg message.Message) (string, bool) {
	if IsCommand(msg.Content) {
		return r.dispatchCommand(ctx, msg)
	}
	return r.dispatchTriggers(ctx, msg)
}

func (r *Registry) dispatchCommand(ctx context.Context, msg message.Message) (string, bool) {
	name, args := ParseCommand(msg.Content)

	r.mu.Lock()
	bound, ok := r.commands[name]
	r.mu.Unlock()
	if !ok || !bound.module.Enabled() {
		return "", false
	}

	resp, err := r.invoke(ctx, bound.module, func() (string, error) {
		return bound.cmd.Handler(ctx, msg, args)
	})
	if err != nil {
		r.logger.Error("command handler failed", "command", name, "module", bound.module.ID(), "error", err)
		return fmt.Sprintf("Error processing command: %v", err), true
	}
	return resp, true
}

func (r *Registry) dispatchTriggers(ctx context.Context, msg message.Message) (string, bool) {
	for _, m := range r.Modules() {
		if !m.Enabled() || !m.Matches(msg.Content) {
			continue
		}
		resp, err := r.invoke(ctx, m, func() (string, error) {
			return m.HandleText(ctx, msg)
		})
		if err != nil {
			r.logger.Error("module handler failed", "module", m.ID(), "error", err)
			return fmt.Sprintf("Error processing message: %v", err), true
		}
		if resp == "" {
			// The module declined after matching; fall through to the
			// generative path rather than trying later modules.
			return "", false
		}
		return resp, true
	}
	return "", false
}

// invoke isolates handler failures: a panic inside a module must not take
// down the message pipeline.
func (r *Registry) invoke(_ context.Context, m Module, fn func() (string, error)) (resp string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("module handler panicked", "module", m.ID(), "panic", rec)
			err = fmt.Errorf("internal module failure")
		}
	}()
	return fn()
}
