package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cortexhub/persona-gateway/internal/logging"
)

// Handler processes one inbound message and returns the reply text.
type Handler func(ctx context.Context, userID, platform, text string) string

// Router owns the enabled adapters, pumps their inbound streams through a
// single handler, and routes outbound messages back by platform name.
type Router struct {
	handler  Handler
	adapters map[string]Adapter
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewRouter(handler Handler) *Router {
	return &Router{
		handler:  handler,
		adapters: make(map[string]Adapter),
		logger:   logging.WithComponent("channel"),
	}
}

// Register adds an adapter. Disabled adapters are recorded but never started.
func (r *Router) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Platforms returns the names of the enabled adapters.
func (r *Router) Platforms() []string {
	var names []string
	for name, a := range r.adapters {
		if a.IsEnabled() {
			names = append(names, name)
		}
	}
	return names
}

// Start brings up every enabled adapter and begins pumping its messages.
func (r *Router) Start(ctx context.Context) error {
	for name, a := range r.adapters {
		if !a.IsEnabled() {
			r.logger.Info("channel disabled", "platform", name)
			continue
		}
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s channel: %w", name, err)
		}
		r.logger.Info("channel started", "platform", name)

		r.wg.Add(1)
		go r.pump(ctx, a)
	}
	return nil
}

func (r *Router) pump(ctx context.Context, a Adapter) {
	defer r.wg.Done()
	for msg := range a.Incoming() {
		if msg.Content == "" {
			continue
		}
		reply := r.handler(ctx, msg.UserID, msg.Platform, msg.Content)
		if reply == "" {
			continue
		}
		if err := a.SendMessage(msg.UserID, &Response{Content: reply}); err != nil {
			r.logger.Error("failed to send reply",
				"platform", a.Name(), "user_id", msg.UserID, "error", err)
		}
	}
}

// Stop shuts every adapter down and waits for the pumps to drain.
func (r *Router) Stop() {
	for name, a := range r.adapters {
		if !a.IsEnabled() {
			continue
		}
		if err := a.Stop(); err != nil {
			r.logger.Error("failed to stop channel", "platform", name, "error", err)
		}
	}
	r.wg.Wait()
}

// Send delivers text to a user on the named platform.
func (r *Router) Send(platform, userID, text string) error {
	a, ok := r.adapters[platform]
	if !ok || !a.IsEnabled() {
		return fmt.Errorf("no active channel for platform %q", platform)
	}
	return a.SendMessage(userID, &Response{Content: text})
}

// SendReminder delivers a due reminder back on the platform it was set from.
func (r *Router) SendReminder(platform, userID, task string) error {
	return r.Send(platform, userID, fmt.Sprintf("⏰ Reminder: %s", task))
}
