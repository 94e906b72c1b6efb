// Package embed wraps a remote embedding service behind a fixed-dimension
// vector contract, per the external interface in the embedding service
// section.
package embed

import "context"

// Embedder produces fixed-dimension vectors for text. Implementations fail
// with an *verrors.VaultError wrapping ErrCodeEmbed on transport or service
// failure; callers propagate rather than retry indefinitely.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	// An empty input yields an empty, non-nil result.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns EMBEDDING_DIM, fixed for the lifetime of the
	// embedder.
	Dimensions() int

	// Close releases any pooled transport resources.
	Close() error
}
