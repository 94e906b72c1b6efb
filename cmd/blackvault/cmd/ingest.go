package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/fetch"
	"github.com/blackvault/blackvault/internal/ingest"
)

// resolveSource returns a local path ready for IngestFile, fetching arg to a
// temp file first when it's an http(s) URL. The returned cleanup must run
// once ingestion of that source is done.
func resolveSource(cmd *cobra.Command, arg string) (path string, cleanup func(), err error) {
	if !isURL(arg) {
		abs, absErr := filepath.Abs(arg)
		if absErr != nil {
			abs = arg
		}
		return abs, func() {}, nil
	}

	tmp, err := fetch.ToTempFile(cmd.Context(), arg)
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s: %w", arg, err)
	}
	return tmp, func() { os.Remove(tmp) }, nil
}

func isURL(s string) bool {
	parsed, err := url.ParseRequestURI(s)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https")
}

func newIngestCmd() *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "ingest <path|url>...",
		Short: "Ingest one or more files or URLs into the vault",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cleanup, err := openVault()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()

			if !batch && len(args) == 1 {
				path, srcCleanup, err := resolveSource(cmd, args[0])
				if err != nil {
					return err
				}
				defer srcCleanup()
				res := v.Ingester.IngestFile(ctx, path, true)
				if strings.TrimSpace(res.Path) == "" || isURL(args[0]) {
					res.Path = args[0]
				}
				return printIngestResult(cmd, res)
			}

			for _, arg := range args {
				path, srcCleanup, err := resolveSource(cmd, arg)
				if err != nil {
					return err
				}
				defer srcCleanup()
				v.Queue.Submit(ctx, path)
			}
			results := v.Queue.Drain(ctx)
			failed := 0
			for _, res := range results {
				if err := printIngestResult(cmd, res); err != nil {
					return err
				}
				if !res.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to ingest", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "Ingest via the worker pool even for a single file")
	return cmd
}

func printIngestResult(cmd *cobra.Command, res ingest.Result) error {
	out := cmd.OutOrStdout()
	switch {
	case res.IsDuplicate:
		fmt.Fprintf(out, "SKIP  %s (duplicate of item %d)\n", res.Path, res.DuplicateID)
	case res.Error != nil:
		fmt.Fprintf(out, "FAIL  %s: %v\n", res.Path, res.Error)
	case res.Success:
		fmt.Fprintf(out, "OK    %s -> item %d\n", res.Path, res.ItemID)
	default:
		fmt.Fprintf(out, "?     %s\n", res.Path)
	}
	return nil
}
