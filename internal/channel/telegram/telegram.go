// Package telegram connects the gateway to the Telegram Bot API via long
// polling.
package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cortexhub/persona-gateway/internal/channel"
	"github.com/cortexhub/persona-gateway/internal/logging"
)

type Adapter struct {
	token    string
	bot      *tgbotapi.BotAPI
	incoming chan *channel.Message
	logger   *slog.Logger
}

func New(token string) *Adapter {
	return &Adapter{
		token:    token,
		incoming: make(chan *channel.Message, 100),
		logger:   logging.WithComponent("telegram"),
	}
}

func (t *Adapter) Name() string { return "telegram" }

func (t *Adapter) IsEnabled() bool { return t.token != "" }

func (t *Adapter) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return err
	}
	t.bot = bot
	t.logger.Info("authorized", "username", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	go func() {
		defer close(t.incoming)
		for {
			select {
			case <-ctx.Done():
				bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				t.incoming <- &channel.Message{
					ID:       strconv.Itoa(update.Message.MessageID),
					Platform: "telegram",
					UserID:   strconv.FormatInt(update.Message.Chat.ID, 10),
					Content:  update.Message.Text,
					Metadata: map[string]string{
						"from_id": strconv.FormatInt(update.Message.From.ID, 10),
					},
					Timestamp: int64(update.Message.Date),
				}
			}
		}
	}()
	return nil
}

func (t *Adapter) Stop() error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *Adapter) SendMessage(userID string, resp *channel.Response) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, resp.Content))
	return err
}

func (t *Adapter) Incoming() <-chan *channel.Message {
	return t.incoming
}
