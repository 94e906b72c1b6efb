package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge clusters of small, similar items into single documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cleanup, err := openVault()
			if err != nil {
				return err
			}
			defer cleanup()

			outcomes, err := v.Consolidator.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(outcomes) == 0 {
				fmt.Fprintln(out, "nothing to consolidate")
				return nil
			}
			for _, o := range outcomes {
				if o.Error != nil {
					fmt.Fprintf(out, "FAIL  %v -> %v\n", o.MemberIDs, o.Error)
					continue
				}
				fmt.Fprintf(out, "OK    %v -> item %d (%s)\n", o.MemberIDs, o.NewItemID, o.MergedPath)
			}
			return nil
		},
	}
	return cmd
}
