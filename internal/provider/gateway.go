package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cortexhub/persona-gateway/internal/config"
	"github.com/cortexhub/persona-gateway/internal/logging"
	"github.com/cortexhub/persona-gateway/internal/message"
	"github.com/cortexhub/persona-gateway/internal/metrics"
	"github.com/cortexhub/persona-gateway/internal/prefs"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Gateway selects a provider per conversation and wraps every network call
// with retry and exponential backoff. Transient failures are retried;
// exhausted retries surface to the caller.
type Gateway struct {
	clients     map[string]Client
	defaultName string
	store       prefs.Store
	logger      *slog.Logger

	// baseDelay is overridable in tests.
	baseDelay time.Duration
}

// NewGateway builds clients for every configured engine. At least one engine
// must be configured.
func NewGateway(cfg config.ProvidersConfig, store prefs.Store) (*Gateway, error) {
	g := &Gateway{
		clients:   make(map[string]Client),
		store:     store,
		logger:    logging.WithComponent("provider"),
		baseDelay: retryBaseDelay,
	}
	for _, ec := range cfg.Engines {
		client, err := NewOpenAIClient(ec)
		if err != nil {
			return nil, err
		}
		g.clients[ec.Name] = client
	}
	if len(g.clients) == 0 {
		return nil, fmt.Errorf("no provider engines configured")
	}

	g.defaultName = cfg.Default
	if g.defaultName == "" {
		g.defaultName = cfg.Engines[0].Name
	}
	if _, ok := g.clients[g.defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownProvider, g.defaultName)
	}
	return g, nil
}

// NewGatewayWithClients wires pre-built clients; used by tests.
func NewGatewayWithClients(defaultName string, store prefs.Store, clients ...Client) *Gateway {
	g := &Gateway{
		clients:     make(map[string]Client),
		defaultName: defaultName,
		store:       store,
		logger:      logging.WithComponent("provider"),
		baseDelay:   time.Millisecond,
	}
	for _, c := range clients {
		g.clients[c.Name()] = c
	}
	return g
}

// Has reports whether a provider name is configured.
func (g *Gateway) Has(name string) bool {
	_, ok := g.clients[name]
	return ok
}

// Names lists the configured providers, sorted.
func (g *Gateway) Names() []string {
	out := make([]string, 0, len(g.clients))
	for name := range g.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultName returns the system-wide default provider name.
func (g *Gateway) DefaultName() string { return g.defaultName }

// ForConversation resolves the provider a conversation should use.
func (g *Gateway) ForConversation(ctx context.Context, conversationID string) string {
	if g.store == nil || conversationID == "" {
		return g.defaultName
	}
	name, ok, err := g.store.Get(ctx, prefs.NSProvider, conversationID)
	if err != nil || !ok {
		return g.defaultName
	}
	if _, exists := g.clients[name]; !exists {
		return g.defaultName
	}
	return name
}

// SetForConversation records a conversation's provider preference.
func (g *Gateway) SetForConversation(ctx context.Context, conversationID, name string) error {
	if _, ok := g.clients[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return g.store.Set(ctx, prefs.NSProvider, conversationID, name)
}

// GenerateResponse calls the conversation's provider with retry.
func (g *Gateway) GenerateResponse(ctx context.Context, conversationID string, msgs []message.Message) (string, error) {
	name := g.ForConversation(ctx, conversationID)
	client := g.clients[name]

	start := time.Now()
	var out string
	err := g.withRetry(ctx, name, func() error {
		var callErr error
		out, callErr = client.GenerateResponse(ctx, msgs)
		return callErr
	})
	metrics.GenerateLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(name).Inc()
		return "", fmt.Errorf("provider %q: %w", name, err)
	}
	return out, nil
}

// GenerateEmbedding calls the default provider's embedding endpoint with
// retry. Embeddings always use the default provider so the semantic index
// stays in one vector space.
func (g *Gateway) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	client := g.clients[g.defaultName]

	var out []float32
	err := g.withRetry(ctx, g.defaultName, func() error {
		var callErr error
		out, callErr = client.GenerateEmbedding(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", g.defaultName, err)
	}
	return out, nil
}

func (g *Gateway) withRetry(ctx context.Context, name string, fn func() error) error {
	var err error
	delay := g.baseDelay
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		g.logger.Warn("provider call failed, retrying",
			"provider", name, "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
