package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config is the runtime shape internal/config's LoggingConfig is translated
// into before Setup runs. Keeping them as separate types lets the CLI's
// `logtoggle` command flip WriteToStderr in the persisted YAML config
// without this package knowing anything about YAML or config layering.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Setup always opens it; an empty
	// path makes Setup fail.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr mirrors LoggingConfig.Stderr; toggled at runtime by the
	// CLI's logtoggle command.
	WriteToStderr bool
}

// DefaultConfig is what blackvault logs with before the config file's
// logging section is applied: info level, stderr mirroring on so a foreground `blackvault serve` shows
// activity, rotated at 10MB with 5 generations kept.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig with the level dropped to debug, used when
// --debug is passed on the command line.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup opens the rotating log file at cfg.FilePath (creating the default
// ~/.blackvault/logs/ directory as well) and installs a JSON slog handler
// over it. Every blackvault command
// calls this once at startup; logtoggle calls it again mid-process to apply
// a flipped WriteToStderr without requiring a restart.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

// SetupDefault wires up DebugConfig and installs the result as slog's
// package-level default logger, for entry points (tests, one-off scripts)
// that don't go through the cobra command tree's own setupLogging.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel converts the string level from config (yaml, env var, or
// --debug) to the slog.Level Setup's handler is configured with. Unknown
// values fall back to info rather than erroring, since a typo'd log level
// shouldn't stop the vault from opening.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString exposes parseLevel outside the package; it accepts the
// same level names Setup does.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
