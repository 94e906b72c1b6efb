// Package llm wraps a remote chat-model service behind the minimal
// generate(prompt, json_mode) contract from §6 of the design. Both the
// IntentParser and the Enricher use it to request structured JSON; a parse
// failure on the caller side is handled as LLMParseError, never here.
package llm

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

// ChatModel generates text from a prompt, optionally constrained to JSON.
type ChatModel interface {
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
	Close() error
}

// OllamaConfig configures the HTTP-based chat client.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// DefaultOllamaConfig returns sensible defaults for a local Ollama instance.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:    "http://localhost:11434",
		Model:   "llama3.1",
		Timeout: 60 * time.Second,
	}
}

// OllamaChatModel implements ChatModel over Ollama's HTTP generate API.
type OllamaChatModel struct {
	cfg    OllamaConfig
	client *http.Client
}

func NewOllamaChatModel(cfg OllamaConfig) *OllamaChatModel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaConfig().Timeout
	}
	transport := &http.Transport{MaxIdleConnsPerHost: 8, IdleConnTimeout: 90 * time.Second}
	return &OllamaChatModel{cfg: cfg, client: &http.Client{Transport: transport}}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (m *OllamaChatModel) Generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req := generateRequest{Model: m.cfg.Model, Prompt: prompt, Stream: false}
	if jsonMode {
		req.Format = "json"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", verrors.LLMParseError("marshal generate request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", verrors.LLMParseError("build generate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", verrors.EmbedError("chat model request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", verrors.LLMParseError("read generate response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", verrors.EmbedError(fmt.Sprintf("chat model returned %d", resp.StatusCode), nil)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", verrors.LLMParseError("decode generate response", err)
	}
	return parsed.Response, nil
}

func (m *OllamaChatModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

var _ ChatModel = (*OllamaChatModel)(nil)
