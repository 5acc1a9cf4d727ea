// Package provider gives the gateway a uniform view over generative model
// back-ends and routes each conversation to its preferred one.
package provider

import (
	"context"
	"errors"

	"github.com/cortexhub/persona-gateway/internal/message"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Client is one generative model back-end.
type Client interface {
	// GenerateResponse produces the assistant's next turn for an ordered
	// message transcript.
	GenerateResponse(ctx context.Context, msgs []message.Message) (string, error)

	// GenerateEmbedding produces an embedding vector for a text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider.
	Name() string
}
