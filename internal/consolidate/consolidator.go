// Package consolidate implements the periodic maintenance pass from §4.9:
// clustering near-duplicate short text items, merging each cluster with the
// chat model, and re-ingesting the merge as a single replacement item.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackvault/blackvault/internal/ingest"
	"github.com/blackvault/blackvault/internal/llm"
	"github.com/blackvault/blackvault/internal/store"
)

// MaxMergeableLength is the total chunk-body length under which a text item
// is a consolidation candidate.
const MaxMergeableLength = 300

// SimilarityThreshold is the single-linkage clustering cutoff.
const SimilarityThreshold = 0.70

// Outcome reports what happened to one cluster.
type Outcome struct {
	MemberIDs  []int64
	MergedPath string
	NewItemID  int64
	Error      error
}

// Consolidator runs the periodic merge pass.
type Consolidator struct {
	Store    store.Store
	Model    llm.ChatModel
	Ingester *ingest.Ingester
	OutDir   string // directory merged text files are written to before re-ingestion
}

type candidate struct {
	itemID int64
	vector []float32
	text   string
}

// Run selects candidates, clusters them, merges each cluster, and deletes
// the originals. It returns one Outcome per non-trivial cluster found.
func (c *Consolidator) Run(ctx context.Context) ([]Outcome, error) {
	candidates, err := c.collectCandidates(ctx)
	if err != nil {
		return nil, err
	}

	clusters := clusterBySimilarity(candidates, SimilarityThreshold)

	var outcomes []Outcome
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		outcomes = append(outcomes, c.mergeCluster(ctx, cluster))
	}
	return outcomes, nil
}

func (c *Consolidator) collectCandidates(ctx context.Context) ([]candidate, error) {
	c.Store.Lock()
	items, err := c.Store.ListItems(ctx)
	c.Store.Unlock()
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, it := range items {
		if it.SourceType != store.SourceTypeText {
			continue
		}

		c.Store.Lock()
		chunks, chunkErr := c.Store.GetChunks(ctx, it.ID)
		c.Store.Unlock()
		if chunkErr != nil || len(chunks) == 0 {
			continue
		}

		total := 0
		for _, ch := range chunks {
			total += len(ch.Body)
		}
		if total > MaxMergeableLength {
			continue
		}

		c.Store.Lock()
		embeddings, embErr := c.Store.GetEmbeddings(ctx, it.ID)
		c.Store.Unlock()
		if embErr != nil || len(embeddings) == 0 {
			continue
		}

		candidates = append(candidates, candidate{
			itemID: it.ID,
			vector: embeddings[0].Vector,
			text:   chunks[0].Body,
		})
	}
	return candidates, nil
}

// clusterBySimilarity implements the spec's seeded single-linkage pass: for
// each unvisited item, absorb every unvisited later item whose similarity to
// it clears the threshold.
func clusterBySimilarity(candidates []candidate, threshold float64) [][]candidate {
	visited := make([]bool, len(candidates))
	var clusters [][]candidate

	for i := range candidates {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := []candidate{candidates[i]}

		for j := i + 1; j < len(candidates); j++ {
			if visited[j] {
				continue
			}
			sim := store.CosineSimilarity(candidates[i].vector, candidates[j].vector)
			if float64(sim) >= threshold {
				visited[j] = true
				cluster = append(cluster, candidates[j])
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

const mergePrompt = `Merge these related short notes into a single coherent note for a personal knowledge base.
Respond with a single JSON object, no prose: {"title": string, "body": string}.

Notes:
%s
`

type mergeResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *Consolidator) mergeCluster(ctx context.Context, cluster []candidate) Outcome {
	ids := make([]int64, len(cluster))
	var texts strings.Builder
	for i, cand := range cluster {
		ids[i] = cand.itemID
		fmt.Fprintf(&texts, "---\n%s\n", cand.text)
	}

	outcome := Outcome{MemberIDs: ids}

	raw, err := c.Model.Generate(ctx, fmt.Sprintf(mergePrompt, texts.String()), true)
	if err != nil {
		outcome.Error = err
		return outcome
	}

	merged, err := parseMergeResult(raw, cluster)
	if err != nil {
		outcome.Error = err
		return outcome
	}

	path, err := c.writeMergedFile(merged)
	if err != nil {
		outcome.Error = err
		return outcome
	}
	outcome.MergedPath = path

	res := c.Ingester.IngestFile(ctx, path, true)
	if res.Error != nil && !res.Success {
		outcome.Error = res.Error
		return outcome
	}
	outcome.NewItemID = res.ItemID

	for _, id := range ids {
		c.Store.Lock()
		delErr := c.Store.DeleteItem(ctx, id)
		c.Store.Unlock()
		if delErr != nil && outcome.Error == nil {
			outcome.Error = delErr
		}
	}
	return outcome
}

func parseMergeResult(raw string, cluster []candidate) (mergeResult, error) {
	var m mergeResult
	if err := json.Unmarshal([]byte(raw), &m); err != nil || strings.TrimSpace(m.Body) == "" {
		// Deterministic fallback: concatenate originals if the model
		// response is unusable.
		var body strings.Builder
		for _, cand := range cluster {
			body.WriteString(cand.text)
			body.WriteString("\n\n")
		}
		return mergeResult{Title: "Consolidated note", Body: strings.TrimSpace(body.String())}, nil
	}
	return m, nil
}

func (c *Consolidator) writeMergedFile(m mergeResult) (string, error) {
	dir := c.OutDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("consolidated-%d.txt", time.Now().UnixNano())
	path := filepath.Join(dir, name)

	content := m.Title + "\n\n" + m.Body
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
