package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata keys used across the gateway.
const (
	MetaUserID         = "user_id"
	MetaPlatform       = "platform"
	MetaConversationID = "conversation_id"
)

// Message is one immutable turn of a conversation.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New builds a message with a generated ID and the current time.
func New(role Role, content string, metadata map[string]string) Message {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewConversationMessage builds a message tagged with its conversation
// identity. The conversation key is always derived with ConversationKey;
// metadata never carries a competing derivation.
func NewConversationMessage(role Role, content, userID, platform string) Message {
	return New(role, content, map[string]string{
		MetaUserID:         userID,
		MetaPlatform:       platform,
		MetaConversationID: ConversationKey(platform, userID),
	})
}

// ConversationKey is the canonical conversation identifier for a user on a
// platform. One conversation per platform:user pair.
func ConversationKey(platform, userID string) string {
	return platform + ":" + userID
}

// UserID returns the user id recorded in metadata, if any.
func (m Message) UserID() string { return m.Metadata[MetaUserID] }

// Platform returns the platform recorded in metadata, if any.
func (m Message) Platform() string { return m.Metadata[MetaPlatform] }

// ConversationID returns the conversation key recorded in metadata, falling
// back to the canonical derivation when absent.
func (m Message) ConversationID() string {
	if id := m.Metadata[MetaConversationID]; id != "" {
		return id
	}
	if m.Platform() != "" && m.UserID() != "" {
		return ConversationKey(m.Platform(), m.UserID())
	}
	return ""
}
