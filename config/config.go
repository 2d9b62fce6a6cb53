package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the phrase service.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Add       AddConfig       `yaml:"add"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`    // "openai", "ollama", "mock"
	Model     string        `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"` // 0 = inferred from the model
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"` // query embedding cache entries (0 = disabled)
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// StoreConfig holds phrase storage configuration.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "bolt", "memory"
	Path    string `yaml:"path"`    // relative paths resolve against the data directory
}

// SearchConfig holds similarity search configuration.
type SearchConfig struct {
	Limit    int     `yaml:"limit"`
	MinScore float64 `yaml:"min_score"` // Filter results below this score (0 = disabled)
}

// AddConfig selects how new phrases get their embedding.
type AddConfig struct {
	Mode        string `yaml:"mode"` // "sync" or "deferred"
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

const (
	ModeSync     = "sync"
	ModeDeferred = "deferred"

	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Store: StoreConfig{
			Backend: BackendBolt,
			Path:    filepath.Join(".soup", "phrases.db"),
		},
		Search: SearchConfig{
			Limit: 5,
		},
		Add: AddConfig{
			Mode:        ModeSync,
			Workers:     2,
			QueueSize:   64,
			MaxAttempts: 1,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// LoadFromDir loads configuration from a directory (looks for soup.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "soup.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".soup", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	switch c.Store.Backend {
	case BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unsupported store backend: %q", c.Store.Backend)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	switch c.Add.Mode {
	case ModeSync:
	case ModeDeferred:
		if c.Add.Workers <= 0 {
			return fmt.Errorf("add.workers must be positive, got %d", c.Add.Workers)
		}
	default:
		return fmt.Errorf("unsupported add mode: %q", c.Add.Mode)
	}
	return nil
}

// StorePath returns the phrase database path for the given data directory.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// EnsureDataDir ensures the directory holding the store path exists.
func (c *Config) EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Dir(c.StorePath(dir)), 0755)
}

// NewLogger builds a slog logger writing to w at the configured level and format.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel maps the configured level name, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
