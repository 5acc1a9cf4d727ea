package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/prefs"
)

type fakeClient struct {
	name     string
	reply    string
	failures int
	calls    int
}

func (f *fakeClient) GenerateResponse(_ context.Context, _ []message.Message) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient failure")
	}
	return f.reply, nil
}

func (f *fakeClient) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient failure")
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeClient) Name() string { return f.name }

func newTestStore(t *testing.T) prefs.Store {
	t.Helper()
	store, err := prefs.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestGenerateResponseRetriesTransientFailure(t *testing.T) {
	client := &fakeClient{name: "openai", reply: "hello", failures: 2}
	g := NewGatewayWithClients("openai", newTestStore(t), client)

	out, err := g.GenerateResponse(context.Background(), "telegram:1", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateResponseExhaustsRetries(t *testing.T) {
	client := &fakeClient{name: "openai", failures: 10}
	g := NewGatewayWithClients("openai", newTestStore(t), client)

	_, err := g.GenerateResponse(context.Background(), "telegram:1", nil)
	require.Error(t, err)
	assert.Equal(t, retryAttempts, client.calls)
}

func TestPreferenceSelectsProvider(t *testing.T) {
	openai := &fakeClient{name: "openai", reply: "from openai"}
	grok := &fakeClient{name: "grok", reply: "from grok"}
	g := NewGatewayWithClients("openai", newTestStore(t), openai, grok)

	ctx := context.Background()
	require.NoError(t, g.SetForConversation(ctx, "telegram:1", "grok"))

	out, err := g.GenerateResponse(ctx, "telegram:1", nil)
	require.NoError(t, err)
	assert.Equal(t, "from grok", out)

	out, err = g.GenerateResponse(ctx, "telegram:2", nil)
	require.NoError(t, err)
	assert.Equal(t, "from openai", out)
}

func TestSetForConversationRejectsUnknown(t *testing.T) {
	g := NewGatewayWithClients("openai", newTestStore(t), &fakeClient{name: "openai"})

	err := g.SetForConversation(context.Background(), "telegram:1", "nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestStalePreferenceFallsBackToDefault(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set(context.Background(), prefs.NSProvider, "telegram:1", "removed"))

	g := NewGatewayWithClients("openai", store, &fakeClient{name: "openai", reply: "ok"})
	assert.Equal(t, "openai", g.ForConversation(context.Background(), "telegram:1"))
}
