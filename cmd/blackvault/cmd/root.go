// Package cmd provides the CLI commands for Black Vault.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackvault/blackvault/internal/config"
	"github.com/blackvault/blackvault/internal/logging"
	"github.com/blackvault/blackvault/internal/vault"
	"github.com/blackvault/blackvault/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the blackvault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "blackvault",
		Short:   "A personal content repository with hybrid search",
		Long:    "Black Vault ingests personal documents, enriches and connects them, and serves hybrid vector+keyword search over the result.",
		Version: version.Version,
	}
	cmd.SetVersionTemplate("blackvault version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.blackvault/logs/")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newConsolidateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newLogtoggleCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loggingConfigFrom translates the persisted application config's Logging
// section into internal/logging's own Config, so a toggle written by
// logtoggle actually changes what Setup does on the next run.
func loggingConfigFrom(cfg *config.Config) logging.Config {
	lcfg := logging.DefaultConfig()
	if debugMode {
		lcfg = logging.DebugConfig()
	}
	if cfg.Logging.Level != "" {
		lcfg.Level = cfg.Logging.Level
	}
	if cfg.Logging.Path != "" {
		lcfg.FilePath = cfg.Logging.Path
	}
	lcfg.WriteToStderr = cfg.Logging.Stderr
	return lcfg
}

func setupLogging(cfg *config.Config) func() {
	logger, cleanup, err := logging.Setup(loggingConfigFrom(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging setup failed:", err)
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

func openVault() (*vault.Vault, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cleanup := setupLogging(cfg)

	v, err := vault.Open(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return v, func() {
		_ = v.Close()
		cleanup()
	}, nil
}
