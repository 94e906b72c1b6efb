package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsValidate(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
chunking:
  chunk_size: 2000
  chunk_overlap: 300
ingest:
  workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".blackvault.yaml"), []byte(yamlContent), 0o644))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 300, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 2, cfg.Ingest.Workers)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".blackvault.yaml"), []byte("logging:\n  level: warn\n"), 0o644))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BLACKVAULT_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_RejectsOverlapNotLessThanChunkSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeConnectThreshold(t *testing.T) {
	cfg := NewConfig()
	cfg.Connect.Threshold = 1.5
	assert.Error(t, cfg.Validate())
}
