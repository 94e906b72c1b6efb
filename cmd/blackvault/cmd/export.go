package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/store"
)

type exportRecord struct {
	ID         int64    `json:"id"`
	SourcePath string   `json:"source_path"`
	SourceType string   `json:"source_type"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
	CreatedAt  string   `json:"created_at"`
}

func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export vault item metadata as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cleanup, err := openVault()
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := v.Store.ListItems(cmd.Context())
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "", "json":
				return exportJSON(cmd, items)
			case "csv":
				return exportCSV(cmd, items)
			default:
				return fmt.Errorf("unsupported export format %q (use json or csv)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Export format: json or csv")
	return cmd
}

func exportJSON(cmd *cobra.Command, items []*store.Item) error {
	records := make([]exportRecord, 0, len(items))
	for _, it := range items {
		records = append(records, exportRecord{
			ID:         it.ID,
			SourcePath: it.SourcePath,
			SourceType: string(it.SourceType),
			Title:      it.Title,
			Tags:       it.Tags,
			Summary:    it.Summary,
			CreatedAt:  it.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func exportCSV(cmd *cobra.Command, items []*store.Item) error {
	w := csv.NewWriter(cmd.OutOrStdout())
	defer w.Flush()
	if err := w.Write([]string{"id", "source_path", "source_type", "title", "tags", "summary", "created_at"}); err != nil {
		return err
	}
	for _, it := range items {
		row := []string{
			strconv.FormatInt(it.ID, 10),
			it.SourcePath,
			string(it.SourceType),
			it.Title,
			strings.Join(it.Tags, ";"),
			it.Summary,
			it.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
