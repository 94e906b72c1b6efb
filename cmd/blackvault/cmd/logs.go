package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var explicit string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the path to the current blackvault log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logging.FindLogFile(explicit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&explicit, "path", "", "Check a specific log path instead of the default")
	return cmd
}
