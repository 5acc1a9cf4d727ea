// Package module hosts the pluggable command and trigger-pattern handlers
// that can claim a message before it reaches the generative fallback.
package module

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/message"
)

// Handler processes one command invocation.
type Handler func(ctx context.Context, msg message.Message, args []string) (string, error)

// Command is a registered slash command with its handler and help metadata.
type Command struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Handler     Handler
}

// Module is a unit of extension behavior. A module exposes commands, and may
// additionally claim free-text messages through trigger patterns.
type Module interface {
	ID() string
	Name() string
	Description() string
	Enabled() bool

	// Commands returns the module's commands in registration order.
	Commands() []Command

	// Matches reports whether a free-text message triggers this module.
	Matches(text string) bool

	// HandleText processes a trigger-matched free-text message. An empty
	// response with a nil error means the module declines and the message
	// continues to the generative fallback.
	HandleText(ctx context.Context, msg message.Message) (string, error)
}

// Base carries the bookkeeping shared by all modules; concrete modules embed
// it and register their commands and patterns in their constructor.
type Base struct {
	id          string
	name        string
	description string
	enabled     bool
	commands    []Command
	patterns    []*regexp.Regexp
}

func NewBase(id, name, description string) Base {
	return Base{
		id:          id,
		name:        name,
		description: description,
		enabled:     true,
	}
}

func (b *Base) ID() string          { return b.id }
func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }
func (b *Base) Enabled() bool       { return b.enabled }

func (b *Base) SetEnabled(enabled bool) { b.enabled = enabled }

// RegisterCommand adds a command to the module.
func (b *Base) RegisterCommand(cmd Command) {
	b.commands = append(b.commands, cmd)
}

// RegisterTrigger compiles a case-insensitive pattern that claims free-text
// messages for this module. Invalid patterns are logged and skipped.
func (b *Base) RegisterTrigger(pattern string) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		logging.WithComponent("module").Error("invalid trigger pattern",
			"module", b.id, "pattern", pattern, "error", err)
		return
	}
	b.patterns = append(b.patterns, re)
}

func (b *Base) Commands() []Command { return b.commands }

func (b *Base) Matches(text string) bool {
	for _, p := range b.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// HandleText declines by default; modules with trigger patterns override it.
func (b *Base) HandleText(_ context.Context, _ message.Message) (string, error) {
	return "", nil
}

// HelpText renders the module's command listing.
func (b *Base) HelpText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s - %s\n\n", b.name, b.description)
	sb.WriteString("Commands:\n")
	for _, cmd := range b.commands {
		fmt.Fprintf(&sb, "/%s - %s\n", cmd.Name, cmd.Description)
		if cmd.Usage != "" {
			fmt.Fprintf(&sb, "    usage: %s\n", cmd.Usage)
		}
	}
	return sb.String()
}
