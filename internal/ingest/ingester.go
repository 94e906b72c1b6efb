// Package ingest implements the single-file ingestion protocol from §4.4
// and its bounded-worker-pool batch variant from §5.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blackvault/blackvault/internal/chunk"
	"github.com/blackvault/blackvault/internal/embed"
	verrors "github.com/blackvault/blackvault/internal/errors"
	"github.com/blackvault/blackvault/internal/store"
)

// Cache is satisfied by internal/search.Searcher's Invalidate method;
// declared here to avoid an import cycle. A nil Cache simply disables the
// invalidation call.
type Cache interface {
	Invalidate()
}

// Extractor produces plain text from a file path. Implementations cover
// text/*, image/* (OCR), application/pdf, and audio/* (transcription); they
// are external collaborators per §6 and are injected here as a single
// interface keyed by the resolved MIME family.
type Extractor interface {
	Extract(ctx context.Context, path, mimeType string) (string, error)
}

// Enricher runs post-ingest metadata extraction for one item. Implemented
// by internal/enrich; declared here to avoid an import cycle.
type Enricher interface {
	EnrichItem(ctx context.Context, itemID int64) error
}

// Connector discovers similarity connections for one item. Implemented by
// internal/connect; declared here to avoid an import cycle.
type Connector interface {
	ConnectItem(ctx context.Context, itemID int64) error
}

// Result is the per-file outcome of ingestion, per §4.4.
type Result struct {
	Path        string
	Success     bool
	ItemID      int64
	IsDuplicate bool
	DuplicateID int64
	Error       error
}

// Ingester orchestrates dedup -> extract -> chunk -> embed -> persist ->
// enrich -> connect for one file at a time.
type Ingester struct {
	Store     store.Store
	Embedder  embed.Embedder
	Extractor Extractor
	Enricher  Enricher
	Connector Connector
	ChunkCfg  chunk.Config

	// VaultDir, if set, receives an immutable byte-for-byte copy of every
	// ingested file named <item_id>-<basename>. Empty disables the copy.
	VaultDir string

	// Cache, if set, is invalidated after every successful ingest so stale
	// search results never outlive the item that would change them.
	Cache Cache
}

// acceptedMIMEPrefixes is the allowlist from §4.4 step 4.
var acceptedMIMEPrefixes = []string{"text/", "image/", "audio/"}

func mimeFamily(path string) string {
	ext := filepath.Ext(path)
	t := mime.TypeByExtension(ext)
	if t == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(t, ";"); idx >= 0 {
		t = t[:idx]
	}
	return t
}

func mimeAccepted(mimeType string) bool {
	if mimeType == "application/pdf" {
		return true
	}
	for _, prefix := range acceptedMIMEPrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

// IngestFile runs the single-file protocol. When rebuildIndexes is false
// (the batch path), index rebuilds are the caller's responsibility.
func (in *Ingester) IngestFile(ctx context.Context, path string, rebuildIndexes bool) Result {
	res := Result{Path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		res.Error = verrors.NotFound("source path does not exist: " + path)
		return res
	}

	sum := md5.Sum(raw)
	hash := hex.EncodeToString(sum[:])

	in.Store.Lock()
	existing, lookupErr := in.Store.GetItemByHash(ctx, hash)
	in.Store.Unlock()
	if lookupErr == nil && existing != nil {
		res.IsDuplicate = true
		res.DuplicateID = existing.ID
		res.Error = verrors.DuplicateHash(existing.ID)
		return res
	}

	mimeType := mimeFamily(path)
	if !mimeAccepted(mimeType) {
		res.Error = verrors.UnsupportedType(mimeType)
		return res
	}

	text, err := in.Extractor.Extract(ctx, path, mimeType)
	if err != nil {
		if ve, ok := err.(*verrors.VaultError); ok {
			res.Error = ve
		} else {
			res.Error = verrors.Wrap(verrors.ErrCodeDecode, err)
		}
		return res
	}
	if strings.TrimSpace(text) == "" {
		res.Error = verrors.EmptyContent(path)
		return res
	}

	bodies := chunk.Split(text, in.ChunkCfg)
	vectors, err := in.Embedder.EmbedBatch(ctx, bodies)
	if err != nil {
		res.Error = err
		return res
	}

	sourceType := sourceTypeFor(mimeType)
	mtime := time.Now()
	if info, statErr := os.Stat(path); statErr == nil {
		mtime = info.ModTime()
	}

	var itemID int64
	in.Store.Lock()
	itemID, err = in.Store.PutItem(ctx, path, sourceType, hash, mtime)
	if err == nil && in.VaultDir != "" {
		err = copyToVault(in.VaultDir, itemID, path)
	}
	if err == nil {
		for i, body := range bodies {
			chunkID, chunkErr := in.Store.PutChunk(ctx, itemID, i, body)
			if chunkErr != nil {
				err = chunkErr
				break
			}
			if _, embErr := in.Store.PutEmbedding(ctx, chunkID, itemID, vectors[i]); embErr != nil {
				err = embErr
				break
			}
		}
	}
	if err == nil && rebuildIndexes {
		_ = in.Store.RebuildVectorIndex(ctx, false)
		_ = in.Store.RebuildTextIndex(ctx)
	}
	in.Store.Unlock()

	if err != nil {
		if verrors.IsDuplicateHash(err) {
			if id, ok := verrors.DuplicateHashExistingID(err); ok {
				res.IsDuplicate = true
				res.DuplicateID = id
			}
		}
		res.Error = err
		return res
	}

	res.Success = true
	res.ItemID = itemID

	if in.Cache != nil {
		in.Cache.Invalidate()
	}

	if in.Enricher != nil {
		if enrichErr := in.Enricher.EnrichItem(ctx, itemID); enrichErr != nil {
			// Enrichment degrades gracefully per §7; ingestion already succeeded.
			res.Error = nil
		}
	}
	if in.Connector != nil {
		_ = in.Connector.ConnectItem(ctx, itemID)
	}

	return res
}

// copyToVault makes a byte-for-byte copy of src at
// vaultDir/<itemID>-<basename>, creating vaultDir if needed.
func copyToVault(vaultDir string, itemID int64, src string) error {
	if err := os.MkdirAll(vaultDir, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	dstName := strconv.FormatInt(itemID, 10) + "-" + filepath.Base(src)
	dst := filepath.Join(vaultDir, dstName)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source for vault copy: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create vault copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write vault copy: %w", err)
	}
	return out.Close()
}

func sourceTypeFor(mimeType string) store.SourceType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return store.SourceTypeImage
	case mimeType == "application/pdf":
		return store.SourceTypePDF
	case strings.HasPrefix(mimeType, "audio/"):
		return store.SourceTypeAudio
	default:
		return store.SourceTypeText
	}
}
