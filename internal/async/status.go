// Package async tracks progress for a batch ingestion run that outlives a
// single request, so the HTTP server can report it through a status
// endpoint while the worker pool drains in the background.
package async

import (
	"sync"
	"time"
)

// IngestStatus represents the overall state of a background batch.
type IngestStatus string

const (
	// StatusIndexing indicates the batch is still being processed. The
	// name is kept from the stage vocabulary it was adapted from.
	StatusIndexing IngestStatus = "indexing"
	StatusReady    IngestStatus = "ready"
	StatusError    IngestStatus = "error"
)

// IngestStage represents the current phase of one file's ingestion.
type IngestStage string

const (
	StageScanning  IngestStage = "scanning"
	StageExtracting IngestStage = "extracting"
	StageEmbedding IngestStage = "embedding"
	StagePersisting IngestStage = "persisting"
)

// ProgressSnapshot is an immutable snapshot of batch-ingest progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of one batch run.
type Progress struct {
	mu sync.RWMutex

	status         IngestStatus
	stage          IngestStage
	filesTotal     int
	filesProcessed int
	startTime      time.Time
	errorMessage   string
}

// NewProgress creates a tracker initialized for a batch starting now.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusIndexing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// SetStage updates the current stage and the total file count for it.
func (p *Progress) SetStage(stage IngestStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
}

// UpdateFiles updates the number of files processed so far.
func (p *Progress) UpdateFiles(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
}

// SetError marks the batch as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the batch as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsIndexing reports whether the batch is still running.
func (p *Progress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
