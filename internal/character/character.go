// Package character owns persona definitions and their per-conversation
// assignment.
package character

import "errors"

var (
	ErrNotFound            = errors.New("character not found")
	ErrAlreadyExists       = errors.New("character already exists")
	ErrCannotDeleteDefault = errors.New("cannot delete the default character")
)

// Character is a persona the gateway can speak as.
type Character struct {
	ID           string         `json:"character_id"`
	Name         string         `json:"name"`
	SystemPrompt string         `json:"system_prompt"`
	Description  string         `json:"description,omitempty"`
	Greeting     string         `json:"greeting,omitempty"`
	Farewell     string         `json:"farewell,omitempty"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IsDefault reports whether the character carries the default flag.
func (c Character) IsDefault() bool {
	v, ok := c.Metadata["is_default"].(bool)
	return ok && v
}

// Update describes a partial edit. Nil fields are left unchanged.
type Update struct {
	Name         *string
	SystemPrompt *string
	Description  *string
	Greeting     *string
	Farewell     *string
	AvatarURL    *string
}
