// Package extract implements ingest.Extractor for the MIME families §4.4
// accepts locally: plain text passthrough and HTML main-content extraction
// for POST /ingest/url. Image OCR, PDF, and audio transcription are external
// collaborators per §1 and are wired here as pluggable sub-extractors so a
// deployment can supply them without touching the ingestion protocol.
package extract

import (
	"context"
	"net/url"
	"os"
	"strings"

	readability "github.com/go-shiori/go-readability"

	verrors "github.com/blackvault/blackvault/internal/errors"
)

// SubExtractor handles one non-text MIME family (image OCR, PDF, audio
// transcription). Deployments without these capabilities leave the
// corresponding field nil; ingestion then reports an UnsupportedType error
// for that file instead of crashing.
type SubExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Extractor dispatches by MIME family and satisfies ingest.Extractor.
type Extractor struct {
	Image SubExtractor
	PDF   SubExtractor
	Audio SubExtractor
}

func (e *Extractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	switch {
	case strings.HasPrefix(mimeType, "text/html"):
		return extractHTML(path)
	case strings.HasPrefix(mimeType, "text/"):
		return extractPlainText(path)
	case strings.HasPrefix(mimeType, "image/"):
		if e.Image == nil {
			return "", verrors.UnsupportedType(mimeType)
		}
		return e.Image.Extract(ctx, path)
	case mimeType == "application/pdf":
		if e.PDF == nil {
			return "", verrors.UnsupportedType(mimeType)
		}
		return e.PDF.Extract(ctx, path)
	case strings.HasPrefix(mimeType, "audio/"):
		if e.Audio == nil {
			return "", verrors.UnsupportedType(mimeType)
		}
		return e.Audio.Extract(ctx, path)
	default:
		return "", verrors.UnsupportedType(mimeType)
	}
}

func extractPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", verrors.NotFound("source path does not exist: " + path)
	}
	return string(data), nil
}

// extractHTML pulls the main article body out of a saved HTML document using
// go-readability, the same library the reference web-fetch tooling uses to
// turn raw pages into clean text before downstream processing.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", verrors.NotFound("source path does not exist: " + path)
	}
	defer f.Close()

	pageURL, _ := url.Parse("file://" + path)
	article, err := readability.FromReader(f, pageURL)
	if err != nil {
		return "", verrors.Wrap(verrors.ErrCodeDecode, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", nil
	}
	return text, nil
}
