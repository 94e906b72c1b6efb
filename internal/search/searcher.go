package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/blackvault/blackvault/internal/embed"
	"github.com/blackvault/blackvault/internal/intent"
	"github.com/blackvault/blackvault/internal/store"
)

// resultCacheSize bounds the fused-result LRU cache. A personal vault sees
// a small, repetitive query set (the same few searches run over and over),
// so a modest cache captures most of the benefit.
const resultCacheSize = 256

// Searcher implements §4.8's algorithm: parse intent, optionally bypass to a
// recency listing, else run dense and lexical retrieval in parallel and fuse.
type Searcher struct {
	Store    store.Store
	Embedder embed.Embedder
	Intent   *intent.Parser

	cacheOnce sync.Once
	cache     *lru.Cache[string, []Result]
	// generation is bumped by Invalidate whenever ingestion, deletion, or
	// consolidation changes what a cached query should return; folding it
	// into the cache key is cheaper than walking and evicting entries.
	generation atomic.Uint64
}

func (s *Searcher) ensureCache() {
	s.cacheOnce.Do(func() {
		s.cache, _ = lru.New[string, []Result](resultCacheSize)
	})
}

// Invalidate drops every cached result set. Callers invoke this after any
// write that could change what a query should return: item ingestion,
// deletion, or consolidation.
func (s *Searcher) Invalidate() {
	s.generation.Add(1)
}

func (s *Searcher) cacheKey(query string, limit int, strict bool) string {
	return fmt.Sprintf("%d\x00%s\x00%d\x00%t", s.generation.Load(), query, limit, strict)
}

// Search executes one query end to end.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	s.ensureCache()
	limit := opts.limit()
	qi := s.Intent.Parse(ctx, query)

	if bypassTemporal(qi) {
		return s.temporalBypass(ctx, qi, limit)
	}

	key := s.cacheKey(query, limit, opts.Strict)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	queryVec, err := s.Embedder.Embed(ctx, qi.SemanticQuery)
	if err != nil {
		return nil, err
	}

	fetchK := limit * 2

	var vectorHits []store.VectorHit
	var bm25Hits []store.BM25Hit
	var sessionVec []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Store.Lock()
		defer s.Store.Unlock()
		var err error
		vectorHits, err = s.Store.SearchVector(gctx, queryVec, qi.Filters, fetchK)
		return err
	})
	g.Go(func() error {
		lexQuery := qi.SemanticQuery
		if len(qi.LexicalSynonyms) > 0 {
			lexQuery = lexQuery + " " + strings.Join(qi.LexicalSynonyms, " ")
		}
		s.Store.Lock()
		defer s.Store.Unlock()
		var err error
		bm25Hits, err = s.Store.SearchBM25(gctx, lexQuery, qi.Filters, fetchK)
		return err
	})
	g.Go(func() error {
		s.Store.Lock()
		defer s.Store.Unlock()
		var err error
		sessionVec, err = s.Store.RecentSessionVector(gctx, 5)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := s.fuse(ctx, queryVec, vectorHits, bm25Hits, sessionVec, limit, opts.Strict)
	results, err := s.attachDetails(ctx, ranked)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, results)
	return results, nil
}

// bypassTemporal reports whether the temporal-bypass path (§4.8 step 2)
// applies: an explicit created_after filter, or a metadata_filter intent
// whose semantic query carries almost no content.
func bypassTemporal(qi intent.QueryIntent) bool {
	if qi.Filters.CreatedAfter != nil {
		return true
	}
	if qi.Intent == intent.IntentMetadataFilter && !qi.Filters.Empty() {
		return len(strings.TrimSpace(qi.SemanticQuery)) < 3
	}
	return false
}

func (s *Searcher) temporalBypass(ctx context.Context, qi intent.QueryIntent, limit int) ([]Result, error) {
	s.Store.Lock()
	items, err := s.Store.RecentItemsMatching(ctx, qi.Filters, limit)
	s.Store.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(items))
	for _, it := range items {
		out = append(out, Result{
			ItemID:  it.ID,
			Score:   1.0,
			Title:   it.Title,
			Tags:    it.Tags,
			Summary: it.Summary,
			Source:  it.SourceType,
			Path:    it.SourcePath,
			Snippet: synthesizeSnippet(it),
		})
	}
	return out, nil
}

func synthesizeSnippet(it *store.Item) string {
	if it.Summary != "" {
		return it.Summary
	}
	if it.Title != "" {
		return it.Title
	}
	return it.SourcePath
}

type rankedItem struct {
	itemID int64
	score  float64
}

// fuse implements §4.8 steps 3-5: per-item best chunk/meta/session scoring,
// min-max BM25 normalisation, and the 0.6·sem + 0.4·lex_norm final blend.
func (s *Searcher) fuse(ctx context.Context, queryVec []float32, vectorHits []store.VectorHit, bm25Hits []store.BM25Hit, sessionVec []float32, limit int, strict bool) []rankedItem {
	byItem := make(map[int64]*scoredItem)

	get := func(id int64) *scoredItem {
		si, ok := byItem[id]
		if !ok {
			si = &scoredItem{itemID: id}
			byItem[id] = si
		}
		return si
	}

	for _, h := range vectorHits {
		si := get(h.ItemID)
		if float64(h.Similarity) > si.chunkSim {
			si.chunkSim = float64(h.Similarity)
		}
	}
	for _, h := range bm25Hits {
		si := get(h.ItemID)
		if !si.hasBM25 || h.Score > si.bm25Raw {
			si.bm25Raw = h.Score
			si.hasBM25 = true
		}
	}

	// Item-level metadata-vector and session-recency similarity, per §4.8
	// step 3: both are 0 when the item has no metadata vector yet.
	for id, si := range byItem {
		s.Store.Lock()
		metaEmb, err := s.Store.GetItemEmbedding(ctx, id)
		s.Store.Unlock()
		if err != nil || metaEmb == nil {
			continue
		}
		si.hasMeta = true
		si.metaSim = float64(store.CosineSimilarity(queryVec, metaEmb.Vector))
		if len(sessionVec) > 0 {
			si.sessionSim = float64(store.CosineSimilarity(metaEmb.Vector, sessionVec))
		}
	}

	var minBM25, maxBM25 float64
	first := true
	for _, si := range byItem {
		if !si.hasBM25 {
			continue
		}
		if first {
			minBM25, maxBM25 = si.bm25Raw, si.bm25Raw
			first = false
			continue
		}
		if si.bm25Raw < minBM25 {
			minBM25 = si.bm25Raw
		}
		if si.bm25Raw > maxBM25 {
			maxBM25 = si.bm25Raw
		}
	}

	results := make([]rankedItem, 0, len(byItem))
	for id, si := range byItem {
		if strict && !si.hasBM25 {
			continue
		}
		lexNorm := 0.0
		if si.hasBM25 && maxBM25 > minBM25 {
			lexNorm = (si.bm25Raw - minBM25) / (maxBM25 - minBM25)
		}
		final := 0.6*si.semScore() + 0.4*lexNorm
		results = append(results, rankedItem{itemID: id, score: final})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *Searcher) attachDetails(ctx context.Context, ranked []rankedItem) ([]Result, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(ranked))
	scores := make(map[int64]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.itemID
		scores[r.itemID] = r.score
	}

	s.Store.Lock()
	items, err := s.Store.GetItems(ctx, ids)
	s.Store.Unlock()
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*store.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, Result{
			ItemID:  it.ID,
			Score:   scores[id],
			Title:   it.Title,
			Tags:    it.Tags,
			Summary: it.Summary,
			Source:  it.SourceType,
			Path:    it.SourcePath,
		})
	}
	return out, nil
}
