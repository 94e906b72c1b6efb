// Package vault is the composition root: it wires the Store, Embedder, chat
// model, chunker, Ingester, Enricher, Connector, IntentParser, and Searcher
// into one handle the CLI and HTTP server share.
package vault

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/blackvault/blackvault/internal/async"
	"github.com/blackvault/blackvault/internal/chunk"
	"github.com/blackvault/blackvault/internal/config"
	"github.com/blackvault/blackvault/internal/connect"
	"github.com/blackvault/blackvault/internal/consolidate"
	"github.com/blackvault/blackvault/internal/embed"
	"github.com/blackvault/blackvault/internal/enrich"
	"github.com/blackvault/blackvault/internal/extract"
	"github.com/blackvault/blackvault/internal/ingest"
	"github.com/blackvault/blackvault/internal/intent"
	"github.com/blackvault/blackvault/internal/llm"
	"github.com/blackvault/blackvault/internal/search"
	"github.com/blackvault/blackvault/internal/store"
)

// errBatchInFlight is returned by SubmitBatch when a background batch is
// already draining the Queue.
var errBatchInFlight = errors.New("a batch ingest is already running")

// Vault bundles every long-lived dependency a CLI command or HTTP handler
// needs.
type Vault struct {
	Config      *config.Config
	Store       store.Store
	Embedder    embed.Embedder
	ChatModel   llm.ChatModel
	Ingester    *ingest.Ingester
	Queue       *ingest.Queue
	Enricher    *enrich.Enricher
	Connector   *connect.Connector
	Searcher    *search.Searcher
	Consolidator *consolidate.Consolidator

	// BatchIngest runs POST /ingest/batch's worker-pool drain in the
	// background so the handler can return immediately; GET /status
	// polls its Progress.
	BatchIngest *async.BackgroundIngester
}

// Open builds a Vault from cfg. The caller is responsible for calling Close.
func Open(cfg *config.Config) (*Vault, error) {
	dims := cfg.Embeddings.Dimensions
	st, err := store.Open(cfg.Store.Path, dims)
	if err != nil {
		return nil, err
	}

	embedder := embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:       cfg.Embeddings.Host,
		Model:      cfg.Embeddings.Model,
		Dimensions: dims,
		Timeout:    cfg.Embeddings.Timeout,
	})

	chatModel := llm.NewOllamaChatModel(llm.OllamaConfig{
		Host:    cfg.ChatModel.Host,
		Model:   cfg.ChatModel.Model,
		Timeout: cfg.ChatModel.Timeout,
	})

	enricher := &enrich.Enricher{Store: st, Model: chatModel, Embedder: embedder}
	connector := &connect.Connector{Store: st, Threshold: cfg.Connect.Threshold}

	extractor := &extract.Extractor{}

	parser := &intent.Parser{Model: chatModel}
	searcher := &search.Searcher{Store: st, Embedder: embedder, Intent: parser}

	ingester := &ingest.Ingester{
		Store:     st,
		Embedder:  embedder,
		Extractor: extractor,
		Enricher:  enricher,
		Connector: connector,
		ChunkCfg:  chunk.Config{ChunkSize: cfg.Chunking.ChunkSize, ChunkOverlap: cfg.Chunking.ChunkOverlap},
		VaultDir:  cfg.Store.VaultDir,
		Cache:     searcher,
	}
	queue := ingest.NewQueue(ingester, cfg.Ingest.Workers)

	consolidator := &consolidate.Consolidator{Store: st, Model: chatModel, Ingester: ingester}

	batchIngest := async.NewBackgroundIngester(async.IngesterConfig{
		DataDir: filepath.Dir(cfg.Store.Path),
	})

	return &Vault{
		Config:       cfg,
		Store:        st,
		Embedder:     embedder,
		ChatModel:    chatModel,
		Ingester:     ingester,
		Queue:        queue,
		Enricher:     enricher,
		Connector:    connector,
		Searcher:     searcher,
		Consolidator: consolidator,
		BatchIngest:  batchIngest,
	}, nil
}

// SubmitBatch queues paths and starts draining them on the background
// ingester, returning immediately. A batch already in flight rejects the
// new paths rather than interleaving two drains of the same Queue.
func (v *Vault) SubmitBatch(ctx context.Context, paths []string) error {
	if v.BatchIngest.IsRunning() {
		return errBatchInFlight
	}

	total := len(paths)
	for _, p := range paths {
		v.Queue.Submit(ctx, p)
	}

	v.BatchIngest.IngestFunc = func(ctx context.Context, progress *async.Progress) error {
		progress.SetStage(async.StageEmbedding, total)
		results := v.Queue.Drain(ctx)
		progress.UpdateFiles(len(results))
		failed := 0
		var firstErr error
		for _, r := range results {
			if r.Error != nil && !r.IsDuplicate {
				failed++
				if firstErr == nil {
					firstErr = r.Error
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed: %w", failed, len(results), firstErr)
		}
		return nil
	}
	v.BatchIngest.Start(ctx)
	return nil
}

// Close releases the store and chat model's resources.
func (v *Vault) Close() error {
	if err := v.ChatModel.Close(); err != nil {
		return err
	}
	if err := v.Embedder.Close(); err != nil {
		return err
	}
	return v.Store.Close()
}
