// Package console runs a terminal chat session against the gateway,
// mainly for local testing without a bot token.
package console

import (
	"context"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cortexhub/persona-gateway/internal/channel"
	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/google/uuid"
)

// operatorID is the fixed user id for the terminal session.
const operatorID = "operator"

type Adapter struct {
	enabled  bool
	incoming chan *channel.Message
	program  *tea.Program
	logger   *slog.Logger

	closeMux sync.RWMutex
	closed   bool
}

func New(enabled bool) *Adapter {
	return &Adapter{
		enabled:  enabled,
		incoming: make(chan *channel.Message, 16),
		logger:   logging.WithComponent("console"),
	}
}

func (c *Adapter) Name() string { return "console" }

func (c *Adapter) IsEnabled() bool { return c.enabled }

func (c *Adapter) Start(ctx context.Context) error {
	c.program = tea.NewProgram(newModel(c.submit), tea.WithAltScreen())

	go func() {
		if _, err := c.program.Run(); err != nil {
			c.logger.Error("console session ended", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		c.program.Quit()
	}()
	return nil
}

func (c *Adapter) Stop() error {
	if c.program != nil {
		c.program.Quit()
	}
	c.closeMux.Lock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	c.closeMux.Unlock()
	return nil
}

// submit pushes a line the operator typed into the inbound stream. The
// tea program may still deliver a line while Stop runs; the read lock
// excludes Stop closing the channel mid-send.
func (c *Adapter) submit(text string) {
	c.closeMux.RLock()
	defer c.closeMux.RUnlock()
	if c.closed {
		return
	}
	c.incoming <- &channel.Message{
		ID:       uuid.NewString(),
		Platform: "console",
		UserID:   operatorID,
		Content:  text,
	}
}

func (c *Adapter) SendMessage(_ string, resp *channel.Response) error {
	if c.program != nil {
		c.program.Send(replyMsg{content: resp.Content})
	}
	return nil
}

func (c *Adapter) Incoming() <-chan *channel.Message {
	return c.incoming
}
