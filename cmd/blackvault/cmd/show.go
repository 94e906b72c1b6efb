package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an item's metadata, chunks, and connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", args[0], err)
			}

			v, cleanup, err := openVault()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			item, err := v.Store.GetItem(ctx, id)
			if err != nil {
				return err
			}
			if err := v.Store.LogView(ctx, id); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:      %d\n", item.ID)
			fmt.Fprintf(out, "Path:    %s\n", item.SourcePath)
			fmt.Fprintf(out, "Type:    %s\n", item.SourceType)
			fmt.Fprintf(out, "Title:   %s\n", item.Title)
			fmt.Fprintf(out, "Tags:    %s\n", strings.Join(item.Tags, ", "))
			fmt.Fprintf(out, "Summary: %s\n", item.Summary)

			chunks, err := v.Store.GetChunks(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Chunks:  %d\n", len(chunks))

			conns, err := v.Store.GetConnections(ctx, id)
			if err != nil {
				return err
			}
			if len(conns) > 0 {
				fmt.Fprintln(out, "Connections:")
				for _, c := range conns {
					other := c.ItemA
					if other == id {
						other = c.ItemB
					}
					fmt.Fprintf(out, "  -> item %d (%.2f)\n", other, c.Score)
				}
			}
			return nil
		},
	}
	return cmd
}
