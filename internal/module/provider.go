package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/provider"
)

// ProviderModule exposes the /provider command for viewing and switching the
// conversation's generative provider.
type ProviderModule struct {
	Base
	gateway *provider.Gateway
}

func NewProviderModule(gateway *provider.Gateway) *ProviderModule {
	m := &ProviderModule{
		Base:    NewBase("provider", "Provider Manager", "Manage and switch between AI providers."),
		gateway: gateway,
	}
	m.RegisterCommand(Command{
		Name:        "provider",
		Description: "Switch or view the current AI provider",
		Usage:       "/provider [provider_id]",
		Examples: []string{
			"/provider - Show current provider",
			"/provider openai - Switch to OpenAI",
		},
		Handler: m.providerCommand,
	})
	return m
}

func (m *ProviderModule) providerCommand(ctx context.Context, msg message.Message, args []string) (string, error) {
	conversationID := msg.ConversationID()
	current := m.gateway.ForConversation(ctx, conversationID)

	if len(args) == 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Current AI provider: %s\n\n", current)
		sb.WriteString("To switch providers, use /provider <provider_id>\n\nAvailable providers:\n")
		for _, name := range m.gateway.Names() {
			fmt.Fprintf(&sb, "- %s\n", name)
		}
		return sb.String(), nil
	}

	name := strings.ToLower(args[0])
	if !m.gateway.Has(name) {
		return fmt.Sprintf("Unknown provider: %q\n\nAvailable providers: %s",
			name, strings.Join(m.gateway.Names(), ", ")), nil
	}
	if name == current {
		return fmt.Sprintf("You're already using the %q provider.", name), nil
	}
	if err := m.gateway.SetForConversation(ctx, conversationID, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("AI provider changed to: %s", name), nil
}
