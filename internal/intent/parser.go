// Package intent implements the IntentParser from §4.7: an LLM-backed parse
// of a raw query into denoised semantic terms, broadening synonyms, and a
// structured filter — never SQL text.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/blackvault/blackvault/internal/llm"
	"github.com/blackvault/blackvault/internal/store"
)

// Intent classifies whether a query should bypass hybrid retrieval.
type Intent string

const (
	IntentMetadataFilter Intent = "metadata_filter"
	IntentSemanticSearch Intent = "semantic_search"
)

// QueryIntent is the IntentParser's structured output.
type QueryIntent struct {
	SemanticQuery    string
	LexicalSynonyms  []string
	Filters          store.Filter
	Intent           Intent
}

const prompt = `Parse this search query for a personal knowledge base. Respond with a single JSON object, no prose:
{
  "semantic_query": string (denoised content terms, drop filler words),
  "lexical_synonyms": array of 2-3 synonyms broadening keyword recall, must not repeat words already in semantic_query,
  "created_after": ISO 8601 date string or null,
  "source_type": one of "text", "image", "pdf", "audio", "url", "youtube", or null,
  "tags": array of strings,
  "intent": "metadata_filter" or "semantic_search"
}

Query: %s
`

type rawIntent struct {
	SemanticQuery   string   `json:"semantic_query"`
	LexicalSynonyms []string `json:"lexical_synonyms"`
	CreatedAfter    string   `json:"created_after"`
	SourceType      string   `json:"source_type"`
	Tags            []string `json:"tags"`
	Intent          string   `json:"intent"`
}

// Parser satisfies the Searcher's IntentParser dependency.
type Parser struct {
	Model llm.ChatModel
}

// fallback is the result returned on any LLM or parse failure, per §4.7.
func fallback(query string) QueryIntent {
	return QueryIntent{
		SemanticQuery:   query,
		LexicalSynonyms: nil,
		Filters:         store.Filter{},
		Intent:          IntentSemanticSearch,
	}
}

// Parse extracts structured intent from a raw query string.
func (p *Parser) Parse(ctx context.Context, query string) QueryIntent {
	if p == nil || p.Model == nil {
		return fallback(query)
	}

	raw, err := p.Model.Generate(ctx, fmt.Sprintf(prompt, query), true)
	if err != nil {
		return fallback(query)
	}

	var parsed rawIntent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fallback(query)
	}

	semantic := strings.TrimSpace(parsed.SemanticQuery)
	if len(semantic) < 2 {
		semantic = query
	}

	synonyms := dedupeSynonyms(semantic, parsed.LexicalSynonyms)

	var filter store.Filter
	if parsed.CreatedAfter != "" {
		if t, err := time.Parse(time.RFC3339, parsed.CreatedAfter); err == nil {
			filter.CreatedAfter = &t
		} else if t, err := time.Parse("2006-01-02", parsed.CreatedAfter); err == nil {
			filter.CreatedAfter = &t
		}
	}
	filter.SourceType = store.SourceType(parsed.SourceType)
	filter.Tags = parsed.Tags

	result := QueryIntent{
		SemanticQuery:   semantic,
		LexicalSynonyms: synonyms,
		Filters:         filter,
		Intent:          IntentSemanticSearch,
	}
	if parsed.Intent == string(IntentMetadataFilter) {
		result.Intent = IntentMetadataFilter
	}
	return result
}

func dedupeSynonyms(semantic string, synonyms []string) []string {
	have := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(semantic)) {
		have[w] = true
	}
	out := make([]string, 0, len(synonyms))
	for _, s := range synonyms {
		low := strings.ToLower(strings.TrimSpace(s))
		if low == "" || have[low] {
			continue
		}
		have[low] = true
		out = append(out, s)
	}
	return out
}
