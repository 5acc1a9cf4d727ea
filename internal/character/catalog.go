package character

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/prefs"
)

// Catalog manages the set of characters and which one each conversation
// uses. Characters persist as one JSON file per character; conversation
// assignments live in the preference store.
type Catalog struct {
	mu        sync.Mutex
	dir       string
	defaultID string
	chars     map[string]Character // keyed by lowercased ID
	store     prefs.Store
	logger    *slog.Logger
}

// NewCatalog loads every character file from dir. An empty catalog self-heals
// by creating the built-in default persona.
func NewCatalog(dir, defaultID string, store prefs.Store) (*Catalog, error) {
	c := &Catalog{
		dir:    dir,
		chars:  make(map[string]Character),
		store:  store,
		logger: logging.WithComponent("character"),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create characters dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read characters dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Error("failed to read character file", "path", path, "error", err)
			continue
		}
		var ch Character
		if err := json.Unmarshal(data, &ch); err != nil {
			c.logger.Error("failed to parse character file", "path", path, "error", err)
			continue
		}
		c.chars[strings.ToLower(ch.ID)] = ch
		if c.defaultID == "" || ch.IsDefault() {
			c.defaultID = ch.ID
		}
	}

	if defaultID != "" {
		if _, ok := c.chars[strings.ToLower(defaultID)]; ok {
			c.defaultID = defaultID
		}
	}

	if len(c.chars) == 0 {
		c.createBuiltinDefault()
	}

	c.logger.Info("loaded character catalog", "count", len(c.chars), "default", c.defaultID)
	return c, nil
}

// builtinDefault is the persona created when the catalog is empty.
func builtinDefault() Character {
	return Character{
		ID:   "default",
		Name: "Brainy",
		SystemPrompt: "You are Brainy, a helpful and friendly AI assistant. " +
			"You are knowledgeable and can help users with a wide range of tasks. " +
			"Your tone is friendly, professional, and concise. " +
			"You always aim to provide accurate information and help users achieve their goals.",
		Description: "A helpful and friendly AI assistant.",
		Greeting:    "Hello! I'm Brainy, your friendly AI assistant. How can I help you today?",
		Farewell:    "Goodbye! It was nice chatting with you. Feel free to message me anytime!",
		Metadata:    map[string]any{"is_default": true},
	}
}

func (c *Catalog) createBuiltinDefault() {
	ch := builtinDefault()
	c.chars[strings.ToLower(ch.ID)] = ch
	c.defaultID = ch.ID
	c.save(ch)
	c.logger.Info("created default character", "name", ch.Name)
}

func (c *Catalog) save(ch Character) {
	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		c.logger.Error("failed to marshal character", "id", ch.ID, "error", err)
		return
	}
	path := filepath.Join(c.dir, ch.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Error("failed to save character", "path", path, "error", err)
	}
}

// Get returns a character by ID. Lookup is case-insensitive.
func (c *Catalog) Get(id string) (Character, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(id)
}

func (c *Catalog) get(id string) (Character, error) {
	ch, ok := c.chars[strings.ToLower(id)]
	if !ok {
		return Character{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return ch, nil
}

// Default returns the default character, recreating the built-in one if the
// catalog somehow lost it.
func (c *Catalog) Default() Character {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultLocked()
}

func (c *Catalog) defaultLocked() Character {
	if ch, ok := c.chars[strings.ToLower(c.defaultID)]; ok {
		return ch
	}
	c.createBuiltinDefault()
	return c.chars[strings.ToLower(c.defaultID)]
}

// List returns all characters sorted by ID.
func (c *Catalog) List() []Character {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Character, 0, len(c.chars))
	for _, ch := range c.chars {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create adds a new character. The ID must not collide with an existing one,
// case-insensitively.
func (c *Catalog) Create(ch Character) (Character, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.ID == "" || ch.Name == "" || ch.SystemPrompt == "" {
		return Character{}, fmt.Errorf("character id, name and system prompt are required")
	}
	if _, ok := c.chars[strings.ToLower(ch.ID)]; ok {
		return Character{}, fmt.Errorf("%w: %q", ErrAlreadyExists, ch.ID)
	}
	if ch.Metadata == nil {
		ch.Metadata = make(map[string]any)
	}
	c.chars[strings.ToLower(ch.ID)] = ch
	c.save(ch)
	c.logger.Info("created character", "id", ch.ID, "name", ch.Name)
	return ch, nil
}

// Edit applies a partial update to an existing character.
func (c *Catalog) Edit(id string, upd Update) (Character, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.get(id)
	if err != nil {
		return Character{}, err
	}
	if upd.Name != nil {
		ch.Name = *upd.Name
	}
	if upd.SystemPrompt != nil {
		ch.SystemPrompt = *upd.SystemPrompt
	}
	if upd.Description != nil {
		ch.Description = *upd.Description
	}
	if upd.Greeting != nil {
		ch.Greeting = *upd.Greeting
	}
	if upd.Farewell != nil {
		ch.Farewell = *upd.Farewell
	}
	if upd.AvatarURL != nil {
		ch.AvatarURL = *upd.AvatarURL
	}
	c.chars[strings.ToLower(ch.ID)] = ch
	c.save(ch)
	c.logger.Info("updated character", "id", ch.ID)
	return ch, nil
}

// Delete removes a character. The default character cannot be deleted.
// Conversations assigned to the deleted character are moved to the default
// before the record goes away.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.get(id)
	if err != nil {
		return err
	}
	if strings.EqualFold(ch.ID, c.defaultID) {
		return ErrCannotDeleteDefault
	}

	assignments, err := c.store.All(ctx, prefs.NSCharacter)
	if err != nil {
		return fmt.Errorf("failed to load character assignments: %w", err)
	}
	for convID, assigned := range assignments {
		if strings.EqualFold(assigned, ch.ID) {
			if err := c.store.Set(ctx, prefs.NSCharacter, convID, c.defaultID); err != nil {
				return fmt.Errorf("failed to reassign conversation %s: %w", convID, err)
			}
		}
	}

	delete(c.chars, strings.ToLower(ch.ID))
	path := filepath.Join(c.dir, ch.ID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Error("failed to remove character file", "path", path, "error", err)
	}
	c.logger.Info("deleted character", "id", ch.ID)
	return nil
}

// SetDefault promotes a character to be the default, demoting the previous
// one's metadata flag.
func (c *Catalog) SetDefault(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.get(id)
	if err != nil {
		return err
	}
	if old, ok := c.chars[strings.ToLower(c.defaultID)]; ok && !strings.EqualFold(old.ID, ch.ID) {
		delete(old.Metadata, "is_default")
		c.chars[strings.ToLower(old.ID)] = old
		c.save(old)
	}
	if ch.Metadata == nil {
		ch.Metadata = make(map[string]any)
	}
	ch.Metadata["is_default"] = true
	c.chars[strings.ToLower(ch.ID)] = ch
	c.defaultID = ch.ID
	c.save(ch)
	c.logger.Info("set default character", "id", ch.ID)
	return nil
}

// ForConversation returns the character assigned to a conversation, or the
// default when no assignment exists or it points at a removed character.
func (c *Catalog) ForConversation(ctx context.Context, conversationID string) Character {
	id, ok, err := c.store.Get(ctx, prefs.NSCharacter, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || !ok {
		return c.defaultLocked()
	}
	ch, lookupErr := c.get(id)
	if lookupErr != nil {
		return c.defaultLocked()
	}
	return ch
}

// SetForConversation assigns a character to a conversation.
func (c *Catalog) SetForConversation(ctx context.Context, conversationID, id string) error {
	c.mu.Lock()
	ch, err := c.get(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.store.Set(ctx, prefs.NSCharacter, conversationID, ch.ID)
}
