// Package memory keeps the per-conversation message log and its semantic
// retrieval view.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/metrics"
)

type conversation struct {
	mu       sync.Mutex
	messages []message.Message
}

// Store is the append-only conversation log plus a best-effort semantic
// index. Appends are serialized per conversation; indexing a message never
// fails the append.
type Store struct {
	mu     sync.Mutex
	convs  map[string]*conversation
	index  SemanticIndex
	logger *slog.Logger
}

// NewStore builds a store. index may be nil, which disables semantic
// retrieval entirely.
func NewStore(index SemanticIndex) *Store {
	return &Store{
		convs:  make(map[string]*conversation),
		index:  index,
		logger: logging.WithComponent("memory"),
	}
}

func (s *Store) conversation(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{}
		s.convs[id] = c
	}
	return c
}

// Append writes a message to a conversation's log and, for user/assistant
// roles, submits it to the semantic index. Index failures are logged and
// swallowed.
func (s *Store) Append(ctx context.Context, conversationID string, msg message.Message) string {
	c := s.conversation(conversationID)
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if s.index != nil && (msg.Role == message.RoleUser || msg.Role == message.RoleAssistant) {
		doc := Document{
			ID:      msg.ID,
			Content: msg.Content,
			Metadata: map[string]string{
				"message_id":      msg.ID,
				"conversation_id": conversationID,
				"role":            string(msg.Role),
				"platform":        msg.Platform(),
				"timestamp":       msg.Timestamp.Format(time.RFC3339Nano),
			},
		}
		if err := s.index.Add(ctx, doc); err != nil {
			metrics.IndexOperations.WithLabelValues("add", "error").Inc()
			s.logger.Error("failed to index message", "message_id", msg.ID, "error", err)
		} else {
			metrics.IndexOperations.WithLabelValues("add", "ok").Inc()
		}
	}

	return msg.ID
}

// History returns a conversation's messages sorted by timestamp ascending.
// A positive limit keeps only the most recent messages.
func (s *Store) History(conversationID string, limit int) []message.Message {
	c := s.conversation(conversationID)
	c.mu.Lock()
	out := make([]message.Message, len(c.messages))
	copy(out, c.messages)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear empties one conversation's log and issues a best-effort delete
// against the semantic index so a cleared conversation cannot leak through
// retrieval.
func (s *Store) Clear(ctx context.Context, conversationID string) {
	c := s.conversation(conversationID)
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()

	if s.index != nil {
		if err := s.index.DeleteWhere(ctx, map[string]string{"conversation_id": conversationID}); err != nil {
			metrics.IndexOperations.WithLabelValues("delete", "error").Inc()
			s.logger.Error("failed to clear conversation from index",
				"conversation_id", conversationID, "error", err)
		} else {
			metrics.IndexOperations.WithLabelValues("delete", "ok").Inc()
		}
	}
	s.logger.Info("cleared conversation", "conversation_id", conversationID)
}

// DropSystem removes system messages from a conversation's log. Used when a
// persona changes so the next generative call reseeds a fresh system prompt.
func (s *Store) DropSystem(conversationID string) {
	c := s.conversation(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role != message.RoleSystem {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

// RetrieveSimilar returns up to limit messages semantically close to the
// query, optionally restricted to one conversation. Index failures degrade
// to an empty result.
func (s *Store) RetrieveSimilar(ctx context.Context, query, conversationID string, limit int) []message.Message {
	if s.index == nil || limit <= 0 {
		return nil
	}

	var where map[string]string
	if conversationID != "" {
		where = map[string]string{"conversation_id": conversationID}
	}

	results, err := s.index.Query(ctx, query, where, limit)
	if err != nil {
		metrics.IndexOperations.WithLabelValues("query", "error").Inc()
		s.logger.Error("semantic query failed, degrading to empty context", "error", err)
		return nil
	}
	metrics.IndexOperations.WithLabelValues("query", "ok").Inc()

	out := make([]message.Message, 0, len(results))
	for _, r := range results {
		if m, ok := s.lookup(r.Metadata["conversation_id"], r.Metadata["message_id"]); ok {
			out = append(out, m)
			continue
		}
		out = append(out, reconstruct(r))
	}
	return out
}

func (s *Store) lookup(conversationID, messageID string) (message.Message, bool) {
	if conversationID == "" || messageID == "" {
		return message.Message{}, false
	}
	c := s.conversation(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return message.Message{}, false
}

// reconstruct rebuilds a message from index metadata alone, for entries whose
// in-memory log is gone (e.g. after a restart with a persistent index).
func reconstruct(r Result) message.Message {
	ts := time.Now()
	if parsed, err := time.Parse(time.RFC3339Nano, r.Metadata["timestamp"]); err == nil {
		ts = parsed
	}
	role := message.Role(r.Metadata["role"])
	if role == "" {
		role = message.RoleUser
	}
	return message.Message{
		ID:        r.Metadata["message_id"],
		Role:      role,
		Content:   r.Content,
		Timestamp: ts,
		Metadata: map[string]string{
			message.MetaConversationID: r.Metadata["conversation_id"],
			message.MetaPlatform:       r.Metadata["platform"],
		},
	}
}
