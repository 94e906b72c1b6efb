// Package chunk splits item text into overlapping, size-bounded pieces for
// embedding and full-text indexing.
package chunk

import "strings"

// Config configures the recursive splitter.
type Config struct {
	ChunkSize    int // max characters per chunk
	ChunkOverlap int // max character overlap between consecutive chunks
}

// DefaultConfig returns the splitter defaults used when none are configured.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 150}
}

// separators are tried in order: paragraph, then sentence, then word, then
// character (the empty string, meaning "split anywhere").
var separators = []string{"\n\n", ". ", " ", ""}

// Split breaks text into chunks no longer than cfg.ChunkSize, with
// consecutive chunks overlapping by at most cfg.ChunkOverlap characters.
// Concatenating the chunks in order reproduces the input except at the
// overlaps. Empty input yields zero chunks.
func Split(text string, cfg Config) []string {
	if text == "" {
		return nil
	}
	if cfg.ChunkSize <= 0 {
		cfg = DefaultConfig()
	}
	pieces := splitRecursive(text, cfg.ChunkSize, separators)
	return mergeWithOverlap(pieces, cfg)
}

// splitRecursive recursively splits text on the first separator that
// produces pieces within the size limit, falling back to the next
// separator (and finally hard character slicing) when a piece is still too
// large.
func splitRecursive(text string, limit int, seps []string) []string {
	if len(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, limit)
	}

	sep := seps[0]
	rest := seps[1:]

	if sep == "" {
		return hardSplit(text, limit)
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, limit, rest)
	}

	var out []string
	for i, p := range parts {
		piece := p
		if i < len(parts)-1 {
			piece += sep
		}
		if piece == "" {
			continue
		}
		if len(piece) > limit {
			out = append(out, splitRecursive(piece, limit, rest)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

func hardSplit(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// mergeWithOverlap packs the small pieces produced by splitRecursive into
// chunks as close to cfg.ChunkSize as possible, carrying the trailing
// cfg.ChunkOverlap characters of each chunk into the next one.
func mergeWithOverlap(pieces []string, cfg Config) []string {
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
		current.Reset()
	}

	for _, p := range pieces {
		if current.Len() > 0 && current.Len()+len(p) > cfg.ChunkSize {
			full := current.String()
			flush()
			current.WriteString(overlapTail(full, p, cfg))
		}
		current.WriteString(p)
	}
	flush()

	return chunks
}

// overlapTail picks the trailing slice of full to carry into the chunk that
// starts with next, shrinking it (or dropping it) so the carried overlap
// plus next never pushes the new chunk past cfg.ChunkSize.
func overlapTail(full, next string, cfg Config) string {
	if cfg.ChunkOverlap <= 0 || len(full) <= cfg.ChunkOverlap {
		return ""
	}
	budget := cfg.ChunkSize - len(next)
	if budget <= 0 {
		return ""
	}
	overlapLen := cfg.ChunkOverlap
	if overlapLen > budget {
		overlapLen = budget
	}
	return full[len(full)-overlapLen:]
}
