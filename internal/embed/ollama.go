package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	verrors "github.com/blackvault/blackvault/internal/errors"
)

// OllamaConfig configures the HTTP-based embedding client.
type OllamaConfig struct {
	Host       string        // e.g. "http://localhost:11434"
	Model      string        // e.g. "nomic-embed-text"
	Dimensions int           // EMBEDDING_DIM, fixed at construction
	Timeout    time.Duration // per-request timeout
	MaxRetries int
}

// DefaultOllamaConfig returns sensible defaults for a local Ollama instance.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

// OllamaEmbedder implements Embedder over Ollama's HTTP embedding API.
// The transport is pooled and reused across requests; per-request timeouts
// are applied via context, not via http.Client.Timeout, so a slow batch does
// not poison unrelated concurrent requests sharing the client.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	client *http.Client
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder constructs a client. It does not probe the service; the
// first Embed/EmbedBatch call surfaces connectivity failures as EmbedError.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaConfig().Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultOllamaConfig().MaxRetries
	}
	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &OllamaEmbedder{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

func (e *OllamaEmbedder) Dimensions() int { return e.cfg.Dimensions }

func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	retryCfg := verrors.DefaultRetryConfig()
	retryCfg.MaxRetries = e.cfg.MaxRetries
	retryCfg.Jitter = true

	for i, text := range texts {
		vec, err := verrors.RetryWithResult(ctx, retryCfg, func() ([]float32, error) {
			return e.doEmbed(ctx, text)
		})
		if err != nil {
			return nil, verrors.New(verrors.ErrCodeEmbed, fmt.Sprintf("embed failed for item %d of %d", i+1, len(texts)), err)
		}
		out[i] = vec
	}
	return out, nil
}

// doEmbed issues one HTTP request. It runs the request in a goroutine so a
// context cancellation returns immediately instead of blocking on the
// transport's own timeout.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type result struct {
		vec []float32
		err error
	}
	ch := make(chan result, 1)

	go func() {
		vec, err := e.embedOnce(reqCtx, text)
		ch <- result{vec, err}
	}()

	select {
	case <-reqCtx.Done():
		return nil, reqCtx.Err()
	case r := <-ch:
		return r.vec, r.err
	}
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if e.cfg.Dimensions > 0 && len(parsed.Embedding) != e.cfg.Dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(parsed.Embedding), e.cfg.Dimensions)
	}
	return parsed.Embedding, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
