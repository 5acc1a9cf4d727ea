package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Document is one indexable text with its metadata.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a document returned from a similarity query.
type Result struct {
	Document
	Similarity float32
}

// SemanticIndex is the vector-search capability the store delegates to.
// Implementations own the embedding model and distance metric.
type SemanticIndex interface {
	Add(ctx context.Context, doc Document) error
	Query(ctx context.Context, text string, where map[string]string, limit int) ([]Result, error)
	DeleteWhere(ctx context.Context, where map[string]string) error
}

// ChromemIndex is a SemanticIndex backed by a persistent chromem-go
// collection.
type ChromemIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemIndex opens (or creates) the vector database at path. embed
// computes embeddings for both stored documents and queries.
func NewChromemIndex(path string, embed chromem.EmbeddingFunc) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	collection, err := db.GetOrCreateCollection("messages", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open messages collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: collection}, nil
}

func (c *ChromemIndex) Add(ctx context.Context, doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	})
}

func (c *ChromemIndex) Query(ctx context.Context, text string, where map[string]string, limit int) ([]Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// chromem rejects queries asking for more results than stored documents.
	if count := c.collection.Count(); limit > count {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := c.collection.Query(ctx, text, limit, where, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (c *ChromemIndex) DeleteWhere(ctx context.Context, where map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.Delete(ctx, where, nil)
}
