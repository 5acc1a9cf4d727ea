// Package prefs persists small per-conversation preference maps, such as the
// character or generative provider assigned to a conversation.
package prefs

import (
	"context"
)

// Namespaces used by the gateway.
const (
	NSCharacter = "character"
	NSProvider  = "provider"
)

// Store is a namespaced string-to-string preference store. Implementations
// must provide read-after-write consistency within a single process.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
	All(ctx context.Context, namespace string) (map[string]string, error)
}
