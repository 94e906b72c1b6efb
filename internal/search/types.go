// Package search implements the Searcher from §4.8: intent parsing, hybrid
// dense+lexical retrieval, score fusion, and a temporal bypass for
// metadata-only queries.
package search

import (
	"github.com/blackvault/blackvault/internal/store"
)

// Result is one ranked search hit, enriched with item metadata for display.
type Result struct {
	ItemID  int64
	Score   float64
	Title   string
	Tags    []string
	Summary string
	Source  store.SourceType
	Path    string

	// Snippet is synthesised from metadata on the temporal-bypass path, or
	// left empty on the hybrid path (callers render it from chunk text).
	Snippet string
}

// Options configures one search call.
type Options struct {
	Limit int

	// Strict drops fusion candidates that never matched lexically: a pure
	// semantic hit with no BM25 overlap is excluded instead of merely
	// scoring lower. Temporal-bypass results are unaffected.
	Strict bool
}

// DefaultOptions returns the package default: 10 results, non-strict.
func DefaultOptions() Options {
	return Options{Limit: 10}
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// scoredItem accumulates per-item partial scores during fusion.
type scoredItem struct {
	itemID      int64
	chunkSim    float64
	metaSim     float64
	hasMeta     bool
	sessionSim  float64
	bm25Raw     float64
	hasBM25     bool
}

func (s scoredItem) semScore() float64 {
	sem := s.chunkSim
	if s.hasMeta {
		sem = 0.7*s.chunkSim + 0.3*s.metaSim
	}
	if s.sessionSim > 0.4 {
		sem += (s.sessionSim - 0.4) * 0.4
	}
	return sem
}

type recentResult struct {
	item  *store.Item
	score float64
}
