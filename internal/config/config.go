// Package config loads Black Vault's layered YAML configuration: hardcoded
// defaults, then a user config, then a project config, then environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Black Vault configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	ChatModel  ChatModelConfig  `yaml:"chat_model" json:"chat_model"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Connect    ConnectConfig    `yaml:"connect" json:"connect"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StoreConfig configures the single embedded SQLite datastore.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`

	// VaultDir holds an immutable byte-for-byte copy of every ingested
	// file, named <item_id>-<basename>, so the original bytes survive even
	// if the source path is later moved or deleted.
	VaultDir string `yaml:"vault_dir" json:"vault_dir"`
}

// EmbeddingsConfig configures the embedding service. Dimensions is fixed at
// startup per §6 and must not change across the life of a store.
type EmbeddingsConfig struct {
	Host       string        `yaml:"host" json:"host"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// ChatModelConfig configures the chat model service used by the IntentParser
// and Enricher.
type ChatModelConfig struct {
	Host    string        `yaml:"host" json:"host"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ChunkingConfig configures the recursive text splitter.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// IngestConfig configures the bounded ingest worker pool.
type IngestConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// SearchConfig configures result sizing for the Searcher.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// ConnectConfig configures the Connector's similarity threshold.
type ConnectConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Path   string `yaml:"path" json:"path"`
	Stderr bool   `yaml:"stderr" json:"stderr"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:     defaultStorePath(),
			VaultDir: defaultVaultDir(),
		},
		Embeddings: EmbeddingsConfig{
			Host:       "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
		},
		ChatModel: ChatModelConfig{
			Host:    "http://localhost:11434",
			Model:   "llama3.1",
			Timeout: 60 * time.Second,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 150,
		},
		Ingest: IngestConfig{
			Workers: runtime.NumCPU(),
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		Connect: ConnectConfig{
			Threshold: 0.75,
		},
		Server: ServerConfig{
			Addr: ":8787",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Path:   defaultLogPath(),
			Stderr: true,
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blackvault", "vault.db")
	}
	return filepath.Join(home, ".blackvault", "vault.db")
}

func defaultVaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blackvault", "blackvault_data", "files")
	}
	return filepath.Join(home, ".blackvault", "blackvault_data", "files")
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blackvault", "logs", "blackvault.log")
	}
	return filepath.Join(home, ".blackvault", "logs", "blackvault.log")
}

// GetUserConfigPath returns the user/global configuration file path,
// honouring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "blackvault", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "blackvault", "config.yaml")
	}
	return filepath.Join(home, ".config", "blackvault", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load applies configuration in order of increasing precedence:
//  1. hardcoded defaults
//  2. user config (~/.config/blackvault/config.yaml)
//  3. project config (.blackvault.yaml in dir)
//  4. environment variables (BLACKVAULT_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".blackvault.yaml", ".blackvault.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	parsed := *c
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c. Logging.Stderr is
// always copied, since false is a real setting for it; loadYAML parses on
// top of c, so a file without that key keeps c's value.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.VaultDir != "" {
		c.Store.VaultDir = other.Store.VaultDir
	}

	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.ChatModel.Host != "" {
		c.ChatModel.Host = other.ChatModel.Host
	}
	if other.ChatModel.Model != "" {
		c.ChatModel.Model = other.ChatModel.Model
	}
	if other.ChatModel.Timeout != 0 {
		c.ChatModel.Timeout = other.ChatModel.Timeout
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}

	if other.Connect.Threshold != 0 {
		c.Connect.Threshold = other.Connect.Threshold
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Path != "" {
		c.Logging.Path = other.Logging.Path
	}
	c.Logging.Stderr = other.Logging.Stderr
}

// applyEnvOverrides applies BLACKVAULT_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BLACKVAULT_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("BLACKVAULT_VAULT_DIR"); v != "" {
		c.Store.VaultDir = v
	}
	if v := os.Getenv("BLACKVAULT_EMBEDDINGS_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("BLACKVAULT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("BLACKVAULT_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("BLACKVAULT_CHAT_MODEL_HOST"); v != "" {
		c.ChatModel.Host = v
	}
	if v := os.Getenv("BLACKVAULT_CHAT_MODEL"); v != "" {
		c.ChatModel.Model = v
	}
	if v := os.Getenv("BLACKVAULT_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
	if v := os.Getenv("BLACKVAULT_CONNECT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Connect.Threshold = f
		}
	}
	if v := os.Getenv("BLACKVAULT_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BLACKVAULT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations the rest of the system cannot run with.
func (c *Config) Validate() error {
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be non-negative and less than chunk_size")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Connect.Threshold < 0 || c.Connect.Threshold > 1 {
		return fmt.Errorf("connect.threshold must be between 0 and 1, got %f", c.Connect.Threshold)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML persists the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
