// Package store owns the single embedded analytical database: schema, CRUD,
// vector/text index lifecycle, and the primitives the Searcher composes into
// hybrid retrieval.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceType enumerates the kinds of content Black Vault ingests.
type SourceType string

const (
	SourceTypeText    SourceType = "text"
	SourceTypeImage   SourceType = "image"
	SourceTypePDF     SourceType = "pdf"
	SourceTypeAudio   SourceType = "audio"
	SourceTypeURL     SourceType = "url"
	SourceTypeYouTube SourceType = "youtube"
)

// Item is a stored document. ContentHash is the dedup key.
type Item struct {
	ID          int64
	SourcePath  string
	SourceType  SourceType
	ContentHash string // MD5 of raw bytes
	Title       string
	Tags        []string
	Summary     string
	SourceMtime time.Time
	CreatedAt   time.Time
	Enriched    bool
}

// Chunk is an ordered text fragment belonging to exactly one item.
type Chunk struct {
	ID     int64
	ItemID int64
	Index  int // 0-based, contiguous within an item
	Body   string
}

// Embedding is a fixed-dimension vector tied to exactly one chunk.
type Embedding struct {
	ID      int64
	ChunkID int64
	ItemID  int64
	Vector  []float32
}

// ItemEmbedding is the single metadata-vector per item, written by the
// Enricher from the item's tags and summary.
type ItemEmbedding struct {
	ItemID int64
	Vector []float32
}

// ChunkMetadata holds the Enricher's structured per-chunk annotations.
type ChunkMetadata struct {
	ChunkID               int64
	Title                 string
	Summary               string
	ContentType           string // e.g. "prose", "code", "list", "table"
	Language              string
	Tags                  []string
	KeyTerms              map[string]float64  // term -> weight
	Entities              map[string][]string // category -> entities
	QuestionsAnswered     []string
	ContextualDependence  string // "standalone" | "depends_on_context"
	PositionalRole        string // "introduction" | "body" | "conclusion" | "reference"
	DensityScore          float64 // [0,1]
	RelevanceScore        float64 // [0,1]
}

// Connection is an undirected similarity edge between two items, stored
// canonically with ItemA < ItemB.
type Connection struct {
	ItemA int64
	ItemB int64
	Score float64
}

// SessionView is an append-only record of a user opening an item.
type SessionView struct {
	ItemID   int64
	ViewedAt time.Time
}

// VectorHit is one result row from a chunk-vector nearest-neighbour search.
type VectorHit struct {
	ItemID     int64
	ChunkID    int64
	Similarity float32 // cosine similarity, higher is better
}

// BM25Hit is one result row from a full-text search.
type BM25Hit struct {
	ItemID  int64
	ChunkID int64
	Score   float64
}

// Filter restricts Store search methods to a subset of items. All fields are
// optional; a zero value means "no restriction" on that dimension. Filter is
// the only path by which the Searcher's structured query intent reaches SQL:
// every field here maps to one parameterised clause, never to raw text.
type Filter struct {
	CreatedAfter *time.Time
	SourceType   SourceType
	Tags         []string
}

// Empty reports whether the filter restricts nothing.
func (f Filter) Empty() bool {
	return f.CreatedAfter == nil && f.SourceType == "" && len(f.Tags) == 0
}

// ErrDimensionMismatch indicates a vector does not match the store's
// configured embedding dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Store is the single embedded-database handle. Per §5 of the design, the
// handle is non-reentrant: every read/write sequence must run under the
// caller-held exclusive lock returned by Lock/Unlock.
type Store interface {
	// Item / chunk / embedding writes.
	PutItem(ctx context.Context, sourcePath string, sourceType SourceType, hash string, mtime time.Time) (int64, error)
	PutChunk(ctx context.Context, itemID int64, index int, body string) (int64, error)
	PutEmbedding(ctx context.Context, chunkID, itemID int64, vector []float32) (int64, error)
	PutConnection(ctx context.Context, a, b int64, score float64) error
	UpdateItemEnrichment(ctx context.Context, itemID int64, title, summary string, tags []string, metaVector []float32) error
	PutChunkMetadata(ctx context.Context, meta *ChunkMetadata) error

	// Reads.
	GetItemByHash(ctx context.Context, hash string) (*Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	GetItems(ctx context.Context, ids []int64) ([]*Item, error)
	ListItems(ctx context.Context) ([]*Item, error)
	GetChunks(ctx context.Context, itemID int64) ([]*Chunk, error)
	GetEmbeddings(ctx context.Context, itemID int64) ([]*Embedding, error)
	GetItemEmbedding(ctx context.Context, itemID int64) (*ItemEmbedding, error)
	GetConnections(ctx context.Context, itemID int64) ([]*Connection, error)
	AllItemsWithEmbeddings(ctx context.Context) ([]int64, error)

	// Search primitives.
	SearchVector(ctx context.Context, queryVec []float32, filter Filter, k int) ([]VectorHit, error)
	SearchBM25(ctx context.Context, queryText string, filter Filter, k int) ([]BM25Hit, error)
	RecentItemsMatching(ctx context.Context, filter Filter, k int) ([]*Item, error)

	// Deletion.
	DeleteItem(ctx context.Context, id int64) error

	// Index lifecycle.
	RebuildVectorIndex(ctx context.Context, force bool) error
	RebuildTextIndex(ctx context.Context) error

	// Session tracking.
	LogView(ctx context.Context, itemID int64) error
	RecentSessionVector(ctx context.Context, k int) ([]float32, error)

	// Concurrency: callers hold this lock around every read/write sequence
	// in §5, releasing it only around Embedder/LLM calls.
	Lock()
	Unlock()

	Close() error
}
