package module

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/message"
)

// ConversationControl is the slice of orchestrator behavior the core module
// needs; the orchestrator implements it.
type ConversationControl interface {
	ClearConversation(ctx context.Context, userID, platform string) error
	ChangeCharacter(ctx context.Context, userID, platform, characterID string) (character.Character, error)
}

// CoreModule provides the built-in conversation commands: greeting, help,
// history clearing and persona selection.
type CoreModule struct {
	Base
	catalog  *character.Catalog
	registry *Registry
	control  ConversationControl
}

func NewCoreModule(catalog *character.Catalog, registry *Registry, control ConversationControl) *CoreModule {
	m := &CoreModule{
		Base:     NewBase("core", "Core", "Built-in conversation commands."),
		catalog:  catalog,
		registry: registry,
		control:  control,
	}

	m.RegisterCommand(Command{
		Name:        "start",
		Description: "Start a conversation with the bot",
		Handler:     m.startCommand,
	})
	m.RegisterCommand(Command{
		Name:        "help",
		Description: "Show available commands",
		Usage:       "/help [module]",
		Handler:     m.helpCommand,
	})
	m.RegisterCommand(Command{
		Name:        "clear",
		Description: "Clear the conversation history",
		Handler:     m.clearCommand,
	})
	m.RegisterCommand(Command{
		Name:        "character",
		Description: "Change the bot's character",
		Usage:       "/character <character_id>",
		Handler:     m.characterCommand,
	})
	m.RegisterCommand(Command{
		Name:        "characters",
		Description: "List available characters",
		Handler:     m.listCharactersCommand,
	})

	return m
}

func (m *CoreModule) startCommand(ctx context.Context, msg message.Message, _ []string) (string, error) {
	ch := m.catalog.ForConversation(ctx, msg.ConversationID())
	if ch.Greeting != "" {
		return ch.Greeting, nil
	}
	return fmt.Sprintf("Hello! I'm %s. How can I help you today?", ch.Name), nil
}

func (m *CoreModule) helpCommand(_ context.Context, _ message.Message, args []string) (string, error) {
	if len(args) > 0 {
		want := strings.ToLower(args[0])
		for _, mod := range m.registry.Modules() {
			if strings.ToLower(mod.ID()) != want {
				continue
			}
			if b, ok := mod.(interface{ HelpText() string }); ok {
				return b.HelpText(), nil
			}
		}
		return fmt.Sprintf("No module named %q.", args[0]), nil
	}

	var sb strings.Builder
	sb.WriteString("Available commands:\n\n")
	for _, mod := range m.registry.Modules() {
		if !mod.Enabled() {
			continue
		}
		fmt.Fprintf(&sb, "%s:\n", mod.Name())
		for _, cmd := range mod.Commands() {
			fmt.Fprintf(&sb, "  /%s - %s\n", cmd.Name, cmd.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (m *CoreModule) clearCommand(ctx context.Context, msg message.Message, _ []string) (string, error) {
	if err := m.control.ClearConversation(ctx, msg.UserID(), msg.Platform()); err != nil {
		return "", err
	}
	return "Conversation history cleared.", nil
}

func (m *CoreModule) characterCommand(ctx context.Context, msg message.Message, args []string) (string, error) {
	if len(args) == 0 {
		current := m.catalog.ForConversation(ctx, msg.ConversationID())
		return fmt.Sprintf("Current character: %s (%s)\n\nUse /character <character_id> to switch. "+
			"See /characters for the full list.", current.Name, current.ID), nil
	}

	ch, err := m.control.ChangeCharacter(ctx, msg.UserID(), msg.Platform(), args[0])
	if err != nil {
		if errors.Is(err, character.ErrNotFound) {
			return fmt.Sprintf("Character %q not found. See /characters for the full list.", args[0]), nil
		}
		return "", err
	}

	if ch.Greeting != "" {
		return fmt.Sprintf("Now chatting with %s.\n\n%s", ch.Name, ch.Greeting), nil
	}
	return fmt.Sprintf("Now chatting with %s.", ch.Name), nil
}

func (m *CoreModule) listCharactersCommand(ctx context.Context, msg message.Message, _ []string) (string, error) {
	current := m.catalog.ForConversation(ctx, msg.ConversationID())

	var sb strings.Builder
	sb.WriteString("Available characters:\n\n")
	for _, ch := range m.catalog.List() {
		marker := " "
		if ch.ID == current.ID {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s (%s)", marker, ch.Name, ch.ID)
		if ch.Description != "" {
			fmt.Fprintf(&sb, " - %s", ch.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nUse /character <character_id> to switch.")
	return sb.String(), nil
}
