// Package config loads the retrieval settings from YAML with defaults and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/hubenschmidt/go-retrieve/embedding"
	"github.com/hubenschmidt/go-retrieve/vector"
)

// Environment variables applied on top of the file.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvLogLevel    = "FISSIO_LOG_LEVEL"
)

// EmbedderConfig selects and configures the text embedder.
type EmbedderConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Dimension   int    `yaml:"dimension,omitempty"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	Dimension int    `yaml:"dimension,omitempty"`
	Setup     bool   `yaml:"setup"`
	Index     string `yaml:"index"`
	// Snapshot is the file the memory backend is loaded from and saved to.
	Snapshot string `yaml:"snapshot,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Chunker  chunker.Config `yaml:"chunker"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Chunker: chunker.DefaultConfig(),
		Embedder: EmbedderConfig{
			Provider:    embedding.ProviderHash,
			BatchSize:   64,
			Concurrency: 4,
			TimeoutSecs: 60,
		},
		Store: StoreConfig{
			Table: vector.DefaultTable,
			Index: vector.IndexHNSW,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a config from path. A missing file yields defaults. Environment
// overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = def.Embedder.Provider
	}
	if cfg.Embedder.Provider == embedding.ProviderOpenAI && cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = def.Embedder.TimeoutSecs
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = def.Store.Table
	}
	if cfg.Store.Index == "" {
		cfg.Store.Index = def.Store.Index
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// Validate reports settings no component could run with.
func (c *Config) Validate() error {
	if err := c.Chunker.Validate(); err != nil {
		return err
	}
	switch c.Embedder.Provider {
	case embedding.ProviderHash, embedding.ProviderOpenAI, embedding.ProviderOllama:
	default:
		return core.InvalidConfig("unknown embedder provider %q", c.Embedder.Provider)
	}
	if c.Embedder.BatchSize <= 0 {
		return core.InvalidConfig("embedder batch_size must be positive, got %d", c.Embedder.BatchSize)
	}
	if c.Embedder.Concurrency < 0 {
		return core.InvalidConfig("embedder concurrency must not be negative, got %d", c.Embedder.Concurrency)
	}
	switch c.Store.Index {
	case vector.IndexHNSW, vector.IndexIVFFlat, vector.IndexNone:
	default:
		return core.InvalidConfig("unknown store index %q", c.Store.Index)
	}
	if c.Embedder.Dimension < 0 || c.Store.Dimension < 0 {
		return core.InvalidConfig("dimensions must not be negative")
	}
	return nil
}

// EmbeddingConfig maps the embedder section onto embedding.Config, reading
// the API key from the configured environment variable.
func (c *Config) EmbeddingConfig() embedding.Config {
	e := c.Embedder
	cfg := embedding.Config{
		Provider:    e.Provider,
		Model:       e.Model,
		BaseURL:     e.BaseURL,
		Dimension:   e.Dimension,
		BatchSize:   e.BatchSize,
		Concurrency: e.Concurrency,
		Timeout:     time.Duration(e.TimeoutSecs) * time.Second,
	}
	if e.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(e.APIKeyEnv)
	}
	return cfg
}

// EmbeddingDimension is the vector width the configured embedder produces
// without calling it: the explicit dimension, else the hash embedder's
// default. Zero means the provider decides at runtime.
func (c *Config) EmbeddingDimension() int {
	if c.Embedder.Dimension > 0 {
		return c.Embedder.Dimension
	}
	if c.Embedder.Provider == embedding.ProviderHash {
		return embedding.DefaultHashDimension
	}
	return 0
}

// OpenConfig maps the store section onto vector.OpenConfig. An unset store
// dimension falls back to embedderDim.
func (c *Config) OpenConfig(embedderDim int, logger *slog.Logger) vector.OpenConfig {
	dim := c.Store.Dimension
	if dim == 0 {
		dim = embedderDim
	}
	return vector.OpenConfig{
		DSN:       c.Store.DSN,
		Table:     c.Store.Table,
		Dimension: dim,
		Setup:     c.Store.Setup,
		Index:     c.Store.Index,
		Logger:    logger,
	}
}
