package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all items in the vault",
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

			out := cmd.OutOrStdout()
			for _, it := range items {
				tags := ""
				if len(it.Tags) > 0 {
					tags = " [" + strings.Join(it.Tags, ", ") + "]"
				}
				title := it.Title
				if title == "" {
					title = it.SourcePath
				}
				fmt.Fprintf(out, "%-6d %-10s %s%s\n", it.ID, it.SourceType, title, tags)
			}
			return nil
		},
	}
	return cmd
}
