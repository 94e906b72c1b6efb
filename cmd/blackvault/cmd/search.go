package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/search"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var strict bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid vector+keyword search over the vault",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cleanup, err := openVault()
			if err != nil {
				return err
			}
			defer cleanup()

			query := strings.Join(args, " ")
			opts := search.DefaultOptions()
			if limit > 0 {
				opts.Limit = limit
			}
			opts.Strict = strict

			results, err := v.Searcher.Search(cmd.Context(), query, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%d] %.3f  %s\n", i+1, r.ItemID, r.Score, r.Title)
				if r.Snippet != "" {
					fmt.Fprintf(out, "     %s\n", r.Snippet)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default 10)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Only return items with a lexical (keyword) match")
	return cmd
}
