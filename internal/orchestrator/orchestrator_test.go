package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexhub/persona-gateway/internal/character"
	"github.com/cortexhub/persona-gateway/internal/memory"
	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/module"
	"github.com/cortexhub/persona-gateway/internal/prefs"
	"github.com/cortexhub/persona-gateway/internal/provider"
)

type scriptedClient struct {
	reply   string
	err     error
	prompts [][]message.Message
}

func (c *scriptedClient) GenerateResponse(_ context.Context, msgs []message.Message) (string, error) {
	c.prompts = append(c.prompts, msgs)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *scriptedClient) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (c *scriptedClient) Name() string { return "scripted" }

type stubIndex struct {
	results  []memory.Result
	queryErr error
}

func (s *stubIndex) Add(context.Context, memory.Document) error { return nil }

func (s *stubIndex) Query(context.Context, string, map[string]string, int) ([]memory.Result, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results, nil
}

func (s *stubIndex) DeleteWhere(context.Context, map[string]string) error { return nil }

type fixture struct {
	orch    *Orchestrator
	client  *scriptedClient
	index   *stubIndex
	catalog *character.Catalog
	store   *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pstore, err := prefs.NewFileStore(t.TempDir())
	require.NoError(t, err)

	catalog, err := character.NewCatalog(t.TempDir(), "", pstore)
	require.NoError(t, err)

	index := &stubIndex{}
	store := memory.NewStore(index)

	client := &scriptedClient{reply: "generated reply"}
	gateway := provider.NewGatewayWithClients("scripted", pstore, client)

	registry := module.NewRegistry()

	orch := New(store, catalog, registry, gateway, Options{
		MaxContextMessages: 10,
		MaxSimilarMessages: 3,
		UseContextSearch:   true,
	})
	registry.Register(module.NewCoreModule(catalog, registry, orch))

	return &fixture{orch: orch, client: client, index: index, catalog: catalog, store: store}
}

func lastPrompt(t *testing.T, c *scriptedClient) []message.Message {
	t.Helper()
	require.NotEmpty(t, c.prompts)
	return c.prompts[len(c.prompts)-1]
}

func TestFirstContactUsesDefaultPersona(t *testing.T) {
	f := newFixture(t)

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello there")
	require.Equal(t, "generated reply", reply)

	prompt := lastPrompt(t, f.client)
	require.Equal(t, message.RoleSystem, prompt[0].Role)
	require.Contains(t, prompt[0].Content, "You are Brainy")

	last := prompt[len(prompt)-1]
	require.Equal(t, message.RoleUser, last.Role)
	require.Equal(t, "hello there", last.Content)
}

func TestBothTurnsPersisted(t *testing.T) {
	f := newFixture(t)

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")

	history := f.store.History(message.ConversationKey("telegram", "alice"), 0)
	var roles []message.Role
	for _, m := range history {
		roles = append(roles, m.Role)
	}
	require.Equal(t, []message.Role{message.RoleSystem, message.RoleUser, message.RoleAssistant}, roles)
	require.Equal(t, "generated reply", history[2].Content)
}

func TestRetrievedContextFollowsSystemPrompt(t *testing.T) {
	f := newFixture(t)
	f.index.results = []memory.Result{
		{Document: memory.Document{
			ID:       "m1",
			Content:  "my favorite color is teal",
			Metadata: map[string]string{"role": "user", "conversation_id": "telegram:alice"},
		}, Similarity: 0.92},
	}

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "what color do I like?")

	prompt := lastPrompt(t, f.client)
	require.GreaterOrEqual(t, len(prompt), 3)
	require.Equal(t, message.RoleSystem, prompt[1].Role)
	require.Contains(t, prompt[1].Content, "relevant previous interactions")
	require.Contains(t, prompt[1].Content, "my favorite color is teal")
}

func TestIndexFailureStillGenerates(t *testing.T) {
	f := newFixture(t)
	f.index.queryErr = errors.New("index offline")

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")
	require.Equal(t, "generated reply", reply)

	systems := 0
	for _, m := range lastPrompt(t, f.client) {
		if m.Role == message.RoleSystem {
			systems++
		}
	}
	require.Equal(t, 1, systems, "no context message should be synthesized")
}

func TestProviderFailureYieldsFallback(t *testing.T) {
	f := newFixture(t)
	f.client.err = errors.New("upstream down")

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")
	require.Equal(t, fallbackReply, reply)

	history := f.store.History(message.ConversationKey("telegram", "alice"), 0)
	last := history[len(history)-1]
	require.Equal(t, message.RoleAssistant, last.Role)
	require.Equal(t, fallbackReply, last.Content)
}

func TestChangeCharacterSwapsSystemPrompt(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.Create(character.Character{
		ID:           "pirate",
		Name:         "Captain Byte",
		SystemPrompt: "You are Captain Byte, a salty pirate who answers in nautical slang.",
	})
	require.NoError(t, err)

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")
	require.Contains(t, lastPrompt(t, f.client)[0].Content, "You are Brainy")

	ch, err := f.orch.ChangeCharacter(context.Background(), "alice", "telegram", "pirate")
	require.NoError(t, err)
	require.Equal(t, "Captain Byte", ch.Name)

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "ahoy")
	require.Contains(t, lastPrompt(t, f.client)[0].Content, "Captain Byte")
}

func TestChangeCharacterUnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.ChangeCharacter(context.Background(), "alice", "telegram", "ghost")
	require.ErrorIs(t, err, character.ErrNotFound)
}

func TestClearConversationReseedsSystemPrompt(t *testing.T) {
	f := newFixture(t)

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")
	require.NoError(t, f.orch.ClearConversation(context.Background(), "alice", "telegram"))

	history := f.store.History(message.ConversationKey("telegram", "alice"), 0)
	require.Len(t, history, 1)
	require.Equal(t, message.RoleSystem, history[0].Role)
	require.Contains(t, history[0].Content, "You are Brainy")
}

func TestCommandBypassesProvider(t *testing.T) {
	f := newFixture(t)

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "/clear")
	require.Equal(t, "Conversation history cleared.", reply)
	require.Empty(t, f.client.prompts)
}

func TestSilentCommandLeavesNoAssistantTurn(t *testing.T) {
	f := newFixture(t)

	quiet := &quietModule{Base: module.NewBase("quiet", "Quiet", "answers nothing")}
	quiet.RegisterCommand(module.Command{
		Name:        "mute",
		Description: "acknowledge silently",
		Handler: func(context.Context, message.Message, []string) (string, error) {
			return "", nil
		},
	})
	f.orch.registry.Register(quiet)

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "/mute")
	require.Empty(t, reply)
	require.Empty(t, f.client.prompts)

	history := f.store.History("telegram:alice", 0)
	require.NotEmpty(t, history)
	for _, m := range history {
		if m.Role == message.RoleAssistant {
			require.NotEmpty(t, m.Content, "empty assistant turn persisted")
		}
	}
}

type quietModule struct {
	module.Base
}

func (m *quietModule) HandleText(context.Context, message.Message) (string, error) {
	return "", nil
}

func TestUnknownCommandFallsThroughToProvider(t *testing.T) {
	f := newFixture(t)

	reply := f.orch.ProcessMessage(context.Background(), "alice", "telegram", "/frobnicate now")
	require.Equal(t, "generated reply", reply)
	require.Len(t, f.client.prompts, 1)
}

func TestHistoryWindowLimitsPrompt(t *testing.T) {
	f := newFixture(t)
	f.orch.opts.MaxContextMessages = 4
	f.orch.opts.UseContextSearch = false

	for _, text := range []string{"one", "two", "three", "four", "five"} {
		f.orch.ProcessMessage(context.Background(), "alice", "telegram", text)
	}

	prompt := lastPrompt(t, f.client)
	var contents []string
	for _, m := range prompt[1:] {
		contents = append(contents, m.Content)
	}
	require.LessOrEqual(t, len(contents), 4)
	require.Equal(t, "five", contents[len(contents)-1])
	require.False(t, strings.Contains(strings.Join(contents, "|"), "one"))
}

func TestPruneIdleSessions(t *testing.T) {
	f := newFixture(t)

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "hello")
	f.orch.ProcessMessage(context.Background(), "bob", "discord", "hi")
	require.Equal(t, 2, f.orch.SessionCount())

	time.Sleep(5 * time.Millisecond)
	pruned := f.orch.PruneIdleSessions(time.Millisecond)
	require.Equal(t, 2, pruned)
	require.Equal(t, 0, f.orch.SessionCount())

	f.orch.ProcessMessage(context.Background(), "alice", "telegram", "back again")
	require.Equal(t, 1, f.orch.SessionCount())
}
