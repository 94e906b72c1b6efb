// Package fetch downloads a remote document to a local temp file so it can
// flow through the same extraction path as any file already on disk.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// maxBodyBytes caps a fetched document at 32MiB, matching the size the
// ingest pipeline already treats as a practical upper bound for a single
// personal document.
const maxBodyBytes = 32 << 20

// ToTempFile downloads rawURL and writes the body to a temp .html file. The
// caller owns the returned path and must remove it once ingestion is done.
func ToTempFile(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "blackvault-fetch-*.html")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
