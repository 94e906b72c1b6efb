// Package enrich implements the post-ingest metadata-extraction pass from
// §4.5: one LLM call per chunk produces structured JSON annotations, and the
// item-level title/summary/tags/metadata-vector are derived by aggregating
// across chunks once all of them are enriched.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/blackvault/blackvault/internal/embed"
	verrors "github.com/blackvault/blackvault/internal/errors"
	"github.com/blackvault/blackvault/internal/llm"
	"github.com/blackvault/blackvault/internal/store"
)

// chunkAnnotation mirrors the JSON shape requested from the chat model for a
// single chunk. Fields map directly onto store.ChunkMetadata.
type chunkAnnotation struct {
	Title                string              `json:"title"`
	Summary              string              `json:"summary"`
	ContentType          string              `json:"content_type"`
	Language             string              `json:"language"`
	Tags                 []string            `json:"tags"`
	KeyTerms             map[string]float64  `json:"key_terms"`
	Entities             map[string][]string `json:"entities"`
	QuestionsAnswered     []string            `json:"questions_answered"`
	ContextualDependence string              `json:"contextual_dependence"`
	PositionalRole       string              `json:"positional_role"`
	DensityScore         float64             `json:"density_score"`
	RelevanceScore       float64             `json:"relevance_score"`
}

const chunkPrompt = `You are annotating one chunk of a larger document for a personal knowledge base.
Respond with a single JSON object, no prose, matching this shape exactly:
{
  "title": string,
  "summary": string (one or two sentences),
  "content_type": one of "prose", "code", "list", "table",
  "language": ISO 639-1 code or "" if not natural language text,
  "tags": array of lowercase short strings,
  "key_terms": object mapping term to weight in [0,1],
  "entities": object mapping category (e.g. "person", "org", "place") to array of names,
  "questions_answered": array of questions this chunk answers,
  "contextual_dependence": "standalone" or "depends_on_context",
  "positional_role": one of "introduction", "body", "conclusion", "reference",
  "density_score": float in [0,1],
  "relevance_score": float in [0,1]
}

Chunk position %d of %d in the document.
Chunk text:
%s
`

// Enricher satisfies ingest.Enricher.
type Enricher struct {
	Store    store.Store
	Model    llm.ChatModel
	Embedder embed.Embedder
}

// EnrichItem annotates every chunk of itemID via the chat model, then
// aggregates the results into the item's title, summary, tags, and
// metadata-vector embedding. It is idempotent: UpdateItemEnrichment only
// transitions an item from unenriched to enriched once.
func (e *Enricher) EnrichItem(ctx context.Context, itemID int64) error {
	e.Store.Lock()
	chunks, err := e.Store.GetChunks(ctx, itemID)
	e.Store.Unlock()
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return verrors.New(verrors.ErrCodeNotFound, fmt.Sprintf("item %d has no chunks to enrich", itemID))
	}

	annotations := make([]chunkAnnotation, len(chunks))
	for i, c := range chunks {
		ann, annErr := e.annotateChunk(ctx, c.Body, i, len(chunks))
		if annErr != nil {
			// A single chunk's annotation failure degrades gracefully: the
			// item still gets aggregated from whatever chunks succeeded.
			continue
		}
		annotations[i] = ann

		meta := &store.ChunkMetadata{
			ChunkID:               c.ID,
			Title:                 ann.Title,
			Summary:               ann.Summary,
			ContentType:           ann.ContentType,
			Language:              ann.Language,
			Tags:                  ann.Tags,
			KeyTerms:              ann.KeyTerms,
			Entities:              ann.Entities,
			QuestionsAnswered:     ann.QuestionsAnswered,
			ContextualDependence:  ann.ContextualDependence,
			PositionalRole:        ann.PositionalRole,
			DensityScore:          ann.DensityScore,
			RelevanceScore:        ann.RelevanceScore,
		}
		e.Store.Lock()
		putErr := e.Store.PutChunkMetadata(ctx, meta)
		e.Store.Unlock()
		if putErr != nil {
			return putErr
		}
	}

	title, summary, tags := aggregate(annotations)

	metaText := "Tags: " + strings.Join(tags, ", ") + "\nSummary: " + summary
	metaVector, embErr := e.Embedder.Embed(ctx, metaText)
	if embErr != nil {
		// Aggregation still proceeds without a metadata vector; the
		// Searcher falls back to chunk-only scoring for this item.
		metaVector = nil
	}

	e.Store.Lock()
	defer e.Store.Unlock()
	return e.Store.UpdateItemEnrichment(ctx, itemID, title, summary, tags, metaVector)
}

func (e *Enricher) annotateChunk(ctx context.Context, body string, index, total int) (chunkAnnotation, error) {
	prompt := fmt.Sprintf(chunkPrompt, index+1, total, body)
	raw, err := e.Model.Generate(ctx, prompt, true)
	if err != nil {
		return chunkAnnotation{}, err
	}
	var ann chunkAnnotation
	if err := json.Unmarshal([]byte(raw), &ann); err != nil {
		return chunkAnnotation{}, verrors.LLMParseError("decode chunk annotation", err)
	}
	return ann, nil
}

// aggregate derives item-level title/summary/tags from per-chunk
// annotations: the first non-empty title (or "Untitled Document" if none
// annotated), a deterministic chunk-count summary, and the five most
// frequent lowercase tags.
func aggregate(annotations []chunkAnnotation) (title, summary string, tags []string) {
	counts := make(map[string]int)

	for _, a := range annotations {
		if title == "" && strings.TrimSpace(a.Title) != "" {
			title = a.Title
		}
		for _, t := range a.Tags {
			counts[strings.ToLower(strings.TrimSpace(t))]++
		}
	}

	if title == "" {
		title = "Untitled Document"
	}
	summary = fmt.Sprintf("Doc aggregated from %d chunk(s).", len(annotations))

	type tagCount struct {
		tag   string
		count int
	}
	ranked := make([]tagCount, 0, len(counts))
	for t, c := range counts {
		if t == "" {
			continue
		}
		ranked = append(ranked, tagCount{t, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].tag < ranked[j].tag
	})
	limit := 5
	if len(ranked) < limit {
		limit = len(ranked)
	}
	for i := 0; i < limit; i++ {
		tags = append(tags, ranked[i].tag)
	}
	return title, summary, tags
}
