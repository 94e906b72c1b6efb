package store

import "context"

// VectorResult is a single result row from a low-level ANN search, keyed by
// the string form of an embedding row id.
type VectorResult struct {
	ID       string  // string(embedding id)
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalised similarity (0-1)
}

// VectorStoreConfig configures the ANN index.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible HNSW defaults for the given
// embedding dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore is the low-level ANN index that SQLiteStore drives to back
// SearchVector and RebuildVectorIndex. Keys are the string form of an
// embedding row id; deletion is lazy (see HNSWStore) because coder/hnsw cannot safely
// delete its last remaining node.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}
