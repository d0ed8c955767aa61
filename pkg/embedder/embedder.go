// Package embedder provides the abstract text-to-vector encoder Grizabella's
// Embedding Coordinator calls on writes and queries. Concrete backends wrap
// a single externally-configured model; callers needing several models
// (one per EmbeddingDefinition) use Registry to multiplex by model ID.
package embedder

import (
	"context"
)

// Embedder turns text into fixed-length float vectors for one model.
type Embedder interface {
	// EmbedDocuments encodes a batch of source texts, one vector per text,
	// in the order given. Used for backfill and write-path re-embedding.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery encodes a single piece of text, optimized for similarity
	// search rather than storage.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the vector length this embedder produces.
	Dimension() int
}
