package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/logging"
)

// newLogtoggleCmd flips whether log lines also go to stderr and re-execs
// Setup so the change is visible immediately, not just on the next command.
func newLogtoggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logtoggle",
		Short: "Toggle whether log output is also written to stderr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cfg.Logging.Stderr = !cfg.Logging.Stderr

			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			projectPath := filepath.Join(dir, ".blackvault.yaml")
			if err := cfg.WriteYAML(projectPath); err != nil {
				return fmt.Errorf("persist logging config: %w", err)
			}

			logger, cleanup, err := logging.Setup(loggingConfigFrom(cfg))
			if err != nil {
				return fmt.Errorf("re-apply logging config: %w", err)
			}
			defer cleanup()
			slog.SetDefault(logger)
			slog.Info("stderr logging toggled", slog.Bool("write_to_stderr", cfg.Logging.Stderr))

			fmt.Fprintf(cmd.OutOrStdout(), "stderr logging is now %s (saved to %s)\n", onOff(cfg.Logging.Stderr), projectPath)
			return nil
		},
	}
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
