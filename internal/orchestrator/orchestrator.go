// Package orchestrator coordinates the end-to-end pipeline for one inbound
// message: session bookkeeping, module dispatch, retrieval-augmented prompt
// assembly and the generative fallback.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/memory"
	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/metrics"
	"github.com/cortexhub/persona-gateway/internal/module"
	"github.com/cortexhub/persona-gateway/internal/provider"
)

// fallbackReply is sent when the generative provider fails after retries.
const fallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again later."

// session caches a user's active conversation so every turn doesn't re-derive
// it. It carries no correctness obligation beyond caching.
type session struct {
	UserID         string
	Platform       string
	ConversationID string
	CharacterID    string
	LastActivity   time.Time
}

// Options tune the prompt window and retrieval behavior.
type Options struct {
	MaxContextMessages int
	MaxSimilarMessages int
	UseContextSearch   bool
}

// Orchestrator is the top-level coordinator for conversations.
type Orchestrator struct {
	store    *memory.Store
	catalog  *character.Catalog
	registry *module.Registry
	gateway  *provider.Gateway
	opts     Options

	mu       sync.Mutex
	sessions map[string]*session

	logger *slog.Logger
}

func New(store *memory.Store, catalog *character.Catalog, registry *module.Registry, gateway *provider.Gateway, opts Options) *Orchestrator {
	if opts.MaxContextMessages <= 0 {
		opts.MaxContextMessages = 10
	}
	if opts.MaxSimilarMessages <= 0 {
		opts.MaxSimilarMessages = 3
	}
	return &Orchestrator{
		store:    store,
		catalog:  catalog,
		registry: registry,
		gateway:  gateway,
		opts:     opts,
		sessions: make(map[string]*session),
		logger:   logging.WithComponent("orchestrator"),
	}
}

// sessionFor returns the user's session, creating it (and seeding the
// conversation's system prompt) on first contact.
func (o *Orchestrator) sessionFor(ctx context.Context, userID, platform string) *session {
	key := message.ConversationKey(platform, userID)

	o.mu.Lock()
	s, ok := o.sessions[key]
	if ok {
		s.LastActivity = time.Now()
		o.mu.Unlock()
		return s
	}
	s = &session{
		UserID:         userID,
		Platform:       platform,
		ConversationID: key,
		LastActivity:   time.Now(),
	}
	o.sessions[key] = s
	metrics.ActiveSessions.Set(float64(len(o.sessions)))
	o.mu.Unlock()

	ch := o.catalog.ForConversation(ctx, key)
	s.CharacterID = ch.ID
	o.seedSystemPrompt(ctx, s, ch)

	o.logger.Debug("created session", "user_id", userID, "platform", platform)
	return s
}

func (o *Orchestrator) seedSystemPrompt(ctx context.Context, s *session, ch character.Character) {
	for _, m := range o.store.History(s.ConversationID, 0) {
		if m.Role == message.RoleSystem {
			return
		}
	}
	o.store.Append(ctx, s.ConversationID,
		message.NewConversationMessage(message.RoleSystem, ch.SystemPrompt, s.UserID, s.Platform))
}

// ProcessMessage runs one inbound message through the pipeline and returns
// the reply to send back. Every path appends both the user turn and the
// assistant turn to the conversation log.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, platform, text string) string {
	s := o.sessionFor(ctx, userID, platform)
	convID := s.ConversationID

	userMsg := message.NewConversationMessage(message.RoleUser, text, userID, platform)
	o.store.Append(ctx, convID, userMsg)

	if resp, handled := o.registry.Dispatch(ctx, userMsg); handled {
		outcome := "command"
		if !module.IsCommand(text) {
			outcome = "module"
		}
		metrics.MessagesProcessed.WithLabelValues(platform, outcome).Inc()
		if resp != "" {
			o.appendAssistant(ctx, convID, userID, platform, resp)
		}
		return resp
	}

	reply, failed := o.generate(ctx, s, text)
	outcome := "generated"
	if failed {
		outcome = "fallback"
	}
	metrics.MessagesProcessed.WithLabelValues(platform, outcome).Inc()

	o.appendAssistant(ctx, convID, userID, platform, reply)
	return reply
}

func (o *Orchestrator) appendAssistant(ctx context.Context, convID, userID, platform, content string) {
	o.store.Append(ctx, convID,
		message.NewConversationMessage(message.RoleAssistant, content, userID, platform))
}

// generate assembles the prompt and calls the provider gateway. The bool
// result reports whether the apologetic fallback was used.
func (o *Orchestrator) generate(ctx context.Context, s *session, query string) (string, bool) {
	ch := o.catalog.ForConversation(ctx, s.ConversationID)
	s.CharacterID = ch.ID

	prompt := o.assemblePrompt(ctx, s, ch, query)

	reply, err := o.gateway.GenerateResponse(ctx, s.ConversationID, prompt)
	if err != nil {
		o.logger.Error("generative call failed",
			"conversation_id", s.ConversationID, "error", err)
		return fallbackReply, true
	}
	return reply, false
}

// assemblePrompt builds the provider transcript: the current persona's
// system prompt, an optional synthesized context message from semantic
// retrieval, then the history window. Persisted system messages are
// excluded from the window so a persona switch can never leak a stale
// prompt.
func (o *Orchestrator) assemblePrompt(ctx context.Context, s *session, ch character.Character, query string) []message.Message {
	window := o.store.History(s.ConversationID, o.opts.MaxContextMessages)
	turns := make([]message.Message, 0, len(window)+2)
	for _, m := range window {
		if m.Role != message.RoleSystem {
			turns = append(turns, m)
		}
	}

	prompt := []message.Message{
		message.New(message.RoleSystem, ch.SystemPrompt, nil),
	}

	if o.opts.UseContextSearch {
		similar := o.store.RetrieveSimilar(ctx, query, s.ConversationID, o.opts.MaxSimilarMessages)
		if ctxMsg, ok := synthesizeContext(similar); ok {
			prompt = append(prompt, ctxMsg)
		}
	}

	return append(prompt, turns...)
}

// synthesizeContext folds retrieved messages into one system message that
// sits right after the persona prompt.
func synthesizeContext(similar []message.Message) (message.Message, bool) {
	if len(similar) == 0 {
		return message.Message{}, false
	}
	var sb strings.Builder
	sb.WriteString("Here are some relevant previous interactions that may help with your response:\n\n")
	for i, m := range similar {
		role := string(m.Role)
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		fmt.Fprintf(&sb, "%d. %s: %s\n\n", i+1, role, m.Content)
	}
	return message.New(message.RoleSystem, sb.String(), nil), true
}

// ChangeCharacter switches a conversation to another persona. The stored
// system scaffolding from the previous persona is dropped and reseeded so it
// cannot linger.
func (o *Orchestrator) ChangeCharacter(ctx context.Context, userID, platform, characterID string) (character.Character, error) {
	ch, err := o.catalog.Get(characterID)
	if err != nil {
		return character.Character{}, err
	}

	s := o.sessionFor(ctx, userID, platform)
	if err := o.catalog.SetForConversation(ctx, s.ConversationID, ch.ID); err != nil {
		return character.Character{}, err
	}
	s.CharacterID = ch.ID

	o.store.DropSystem(s.ConversationID)
	o.store.Append(ctx, s.ConversationID,
		message.NewConversationMessage(message.RoleSystem, ch.SystemPrompt, userID, platform))

	o.logger.Info("changed character",
		"user_id", userID, "platform", platform, "character", ch.ID)
	return ch, nil
}

// ClearConversation wipes the conversation's history and reseeds the current
// persona's system prompt.
func (o *Orchestrator) ClearConversation(ctx context.Context, userID, platform string) error {
	s := o.sessionFor(ctx, userID, platform)
	o.store.Clear(ctx, s.ConversationID)

	ch := o.catalog.ForConversation(ctx, s.ConversationID)
	o.store.Append(ctx, s.ConversationID,
		message.NewConversationMessage(message.RoleSystem, ch.SystemPrompt, userID, platform))
	return nil
}

// SessionCount reports how many sessions are live.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// PruneIdleSessions drops sessions idle longer than maxIdle. The underlying
// conversation logs are untouched; a pruned user simply gets a fresh session
// on their next message.
func (o *Orchestrator) PruneIdleSessions(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	o.mu.Lock()
	defer o.mu.Unlock()
	pruned := 0
	for key, s := range o.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(o.sessions, key)
			pruned++
		}
	}
	metrics.ActiveSessions.Set(float64(len(o.sessions)))
	return pruned
}
