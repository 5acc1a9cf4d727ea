// Package discord connects the gateway to Discord. The bot answers direct
// messages and guild messages that mention it.
package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/cortexhub/persona-gateway/internal/channel"
	"github.com/cortexhub/persona-gateway/internal/logging"
)

type Adapter struct {
	token    string
	session  *discordgo.Session
	incoming chan *channel.Message
	logger   *slog.Logger

	closeMux sync.RWMutex
	closed   bool
}

func New(token string) *Adapter {
	return &Adapter{
		token:    token,
		incoming: make(chan *channel.Message, 100),
		logger:   logging.WithComponent("discord"),
	}
}

func (d *Adapter) Name() string { return "discord" }

func (d *Adapter) IsEnabled() bool { return d.token != "" }

func (d *Adapter) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return err
	}
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.Bot {
			return
		}
		if m.GuildID != "" && !mentioned(s.State.User.ID, m.Mentions) {
			return
		}
		d.push(&channel.Message{
			ID:       m.ID,
			Platform: "discord",
			UserID:   m.Author.ID,
			Content:  m.Content,
			Metadata: map[string]string{
				"guild_id":    m.GuildID,
				"channel_id":  m.ChannelID,
				"author_name": m.Author.Username,
			},
			Timestamp: m.Timestamp.Unix(),
		})
	})

	if err := session.Open(); err != nil {
		return err
	}
	d.logger.Info("session opened")

	go func() {
		<-ctx.Done()
		session.Close()
	}()
	return nil
}

func (d *Adapter) Stop() error {
	var err error
	if d.session != nil {
		err = d.session.Close()
	}
	d.closeMux.Lock()
	if !d.closed {
		d.closed = true
		close(d.incoming)
	}
	d.closeMux.Unlock()
	return err
}

// push delivers an inbound message unless the adapter has shut down.
// discordgo dispatches handlers asynchronously, so one can still be in
// flight after session.Close returns; the read lock excludes Stop closing
// the channel mid-send.
func (d *Adapter) push(msg *channel.Message) {
	d.closeMux.RLock()
	defer d.closeMux.RUnlock()
	if d.closed {
		return
	}
	d.incoming <- msg
}

func (d *Adapter) SendMessage(userID string, resp *channel.Response) error {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = d.session.ChannelMessageSend(ch.ID, resp.Content)
	return err
}

func (d *Adapter) Incoming() <-chan *channel.Message {
	return d.incoming
}

func mentioned(botID string, mentions []*discordgo.User) bool {
	for _, u := range mentions {
		if u.ID == botID {
			return true
		}
	}
	return false
}
