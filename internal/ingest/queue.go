package ingest

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Queue is the bounded worker pool from §5: W cooperative workers process
// submitted paths, each running the single-file protocol with index
// rebuilds deferred; Drain rebuilds both indexes exactly once after every
// worker finishes.
type Queue struct {
	ingester *Ingester
	sem      *semaphore.Weighted
	workers  int64

	mu      sync.Mutex
	wg      sync.WaitGroup
	results []Result
}

// NewQueue creates a queue bounded to w concurrent workers (default 4).
func NewQueue(ingester *Ingester, w int) *Queue {
	if w <= 0 {
		w = 4
	}
	return &Queue{
		ingester: ingester,
		sem:      semaphore.NewWeighted(int64(w)),
		workers:  int64(w),
	}
}

// Submit enqueues a path for ingestion. It blocks only long enough to
// acquire a worker slot; the ingestion itself runs in a goroutine. A
// worker's failure becomes a Result entry and never aborts its peers.
func (q *Queue) Submit(ctx context.Context, path string) {
	q.wg.Add(1)
	idx := q.reserveSlot()

	go func() {
		defer q.wg.Done()
		defer q.sem.Release(1)

		res := q.ingester.IngestFile(ctx, path, false)

		q.mu.Lock()
		defer q.mu.Unlock()
		for len(q.results) <= idx {
			q.results = append(q.results, Result{})
		}
		q.results[idx] = res
	}()
}

// reserveSlot blocks until a worker slot is free and reserves the next
// result index, preserving submission order in Drain's return value.
func (q *Queue) reserveSlot() int {
	_ = q.sem.Acquire(context.Background(), 1)

	q.mu.Lock()
	defer q.mu.Unlock()
	idx := len(q.results)
	q.results = append(q.results, Result{})
	return idx
}

// Drain blocks until every submitted path has been processed, then rebuilds
// the vector and text indexes exactly once, and returns results in
// submission order. Index rebuild failure is logged but not surfaced to the
// caller, per §5.
func (q *Queue) Drain(ctx context.Context) []Result {
	q.wg.Wait()

	q.ingester.Store.Lock()
	if err := q.ingester.Store.RebuildVectorIndex(ctx, false); err != nil {
		slog.Warn("batch vector index rebuild failed", slog.String("error", err.Error()))
	}
	if err := q.ingester.Store.RebuildTextIndex(ctx); err != nil {
		slog.Warn("batch text index rebuild failed", slog.String("error", err.Error()))
	}
	q.ingester.Store.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Result, len(q.results))
	copy(out, q.results)
	return out
}
