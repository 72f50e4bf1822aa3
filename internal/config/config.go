// Package config loads searchlight configuration from a TOML file with
// environment variable overrides.
//
// Precedence (highest to lowest):
//  1. Environment variables (SEARCHLIGHT_*)
//  2. TOML config file (~/.searchlight/config.toml by default)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration for the searchlight binary.
type Config struct {
	// DataDir holds the SQLite database and on-disk indexes.
	// Defaults to ~/.searchlight.
	DataDir string `toml:"data_dir"`

	Logging   LoggingConfig   `toml:"logging"`
	Provider  ProviderConfig  `toml:"provider"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Sync      SyncConfig      `toml:"sync"`
	Query     QueryConfig     `toml:"query"`
	Cache     CacheConfig     `toml:"cache"`
	Server    ServerConfig    `toml:"server"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Format is json or console.
	Format string `toml:"format"`
}

// ProviderConfig selects and configures the content source.
type ProviderConfig struct {
	// Type is rest or dir. Empty disables sync; search still works
	// against previously indexed content.
	Type string `toml:"type"`

	REST RESTProviderConfig `toml:"rest"`
	Dir  DirProviderConfig  `toml:"dir"`
}

// RESTProviderConfig configures the REST change-feed provider.
type RESTProviderConfig struct {
	// BaseURL is the API root, e.g. https://wiki.example.com/api.
	BaseURL string `toml:"base_url"`

	// Token authenticates with a static bearer token. Ignored when
	// client credentials are set.
	Token Secret `toml:"token"`

	// ClientID, ClientSecret, and TokenURL enable OAuth2 client
	// credentials authentication.
	ClientID     string `toml:"client_id"`
	ClientSecret Secret `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`

	// PageSize is the number of changes requested per feed page.
	PageSize int `toml:"page_size"`

	// RequestsPerSecond throttles calls to the source API.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// Burst is the rate limiter burst allowance.
	Burst int `toml:"burst"`

	// Timeout bounds each HTTP request.
	Timeout Duration `toml:"timeout"`
}

// DirProviderConfig configures the local directory provider.
type DirProviderConfig struct {
	// Path is the root of the document tree.
	Path string `toml:"path"`

	// Scopes are assigned to every document, local files carry no ACLs.
	Scopes []string `toml:"scopes"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	// Provider is openai or ollama. Empty disables vector search and
	// queries run keyword-only.
	Provider string `toml:"provider"`

	// Model overrides the provider's default embedding model.
	Model string `toml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates with the provider. Falls back to
	// OPENAI_API_KEY for the openai provider.
	APIKey Secret `toml:"api_key"`

	// Dimensions overrides the model's default vector size.
	Dimensions int `toml:"dimensions"`

	// Timeout bounds each embedding request.
	Timeout Duration `toml:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `toml:"max_retries"`
}

// ChunkingConfig controls document chunking.
type ChunkingConfig struct {
	// MaxChunkSize is the chunk size ceiling in runes.
	MaxChunkSize int `toml:"max_chunk_size"`
}

// SyncConfig controls the sync engine and scheduler.
type SyncConfig struct {
	// Interval is the scheduled sync period.
	Interval Duration `toml:"interval"`

	// HistoryKeep is how many sync runs to retain.
	HistoryKeep int `toml:"history_keep"`
}

// QueryConfig controls the query engine.
type QueryConfig struct {
	// Limit is the default result count when a query does not set one.
	Limit int `toml:"limit"`

	// SignalTimeout bounds each retrieval signal independently.
	SignalTimeout Duration `toml:"signal_timeout"`

	// RecencyHalfLife is the age at which the recency signal halves.
	RecencyHalfLife Duration `toml:"recency_half_life"`

	// VectorWeight, KeywordWeight, and RecencyWeight blend the three
	// retrieval signals.
	VectorWeight  float64 `toml:"vector_weight"`
	KeywordWeight float64 `toml:"keyword_weight"`
	RecencyWeight float64 `toml:"recency_weight"`
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	Enabled bool `toml:"enabled"`

	// TTL is how long a cached result set stays valid.
	TTL Duration `toml:"ttl"`

	// MaxEntries bounds cache memory; least recently used entries are
	// evicted beyond it.
	MaxEntries int `toml:"max_entries"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Provider: ProviderConfig{
			REST: RESTProviderConfig{
				PageSize:          100,
				RequestsPerSecond: 5,
				Burst:             10,
				Timeout:           Duration(30 * time.Second),
			},
			Dir: DirProviderConfig{
				Scopes: []string{"public"},
			},
		},
		Embedding: EmbeddingConfig{
			Timeout:    Duration(30 * time.Second),
			MaxRetries: 5,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 500,
		},
		Sync: SyncConfig{
			Interval:    Duration(15 * time.Minute),
			HistoryKeep: 50,
		},
		Query: QueryConfig{
			Limit:           10,
			SignalTimeout:   Duration(time.Second),
			RecencyHalfLife: Duration(30 * 24 * time.Hour),
			VectorWeight:    0.6,
			KeywordWeight:   0.3,
			RecencyWeight:   0.1,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        Duration(5 * time.Minute),
			MaxEntries: 512,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".searchlight", "config.toml"), nil
}

// Load reads configuration from the given path, falling back to the
// default location when path is empty. A missing file is not an error;
// defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file yet - defaults and environment apply.
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".searchlight")
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Provider.Dir.Path = expandHome(cfg.Provider.Dir.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides file values with SEARCHLIGHT_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.DataDir, "SEARCHLIGHT_DATA_DIR")
	setString(&c.Logging.Level, "SEARCHLIGHT_LOG_LEVEL")
	setString(&c.Logging.Format, "SEARCHLIGHT_LOG_FORMAT")

	setString(&c.Provider.Type, "SEARCHLIGHT_PROVIDER_TYPE")
	setString(&c.Provider.REST.BaseURL, "SEARCHLIGHT_PROVIDER_BASE_URL")
	setSecret(&c.Provider.REST.Token, "SEARCHLIGHT_PROVIDER_TOKEN")
	setString(&c.Provider.REST.ClientID, "SEARCHLIGHT_PROVIDER_CLIENT_ID")
	setSecret(&c.Provider.REST.ClientSecret, "SEARCHLIGHT_PROVIDER_CLIENT_SECRET")
	setString(&c.Provider.REST.TokenURL, "SEARCHLIGHT_PROVIDER_TOKEN_URL")
	setString(&c.Provider.Dir.Path, "SEARCHLIGHT_PROVIDER_DIR")

	setString(&c.Embedding.Provider, "SEARCHLIGHT_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "SEARCHLIGHT_EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "SEARCHLIGHT_EMBEDDING_BASE_URL")
	setSecret(&c.Embedding.APIKey, "SEARCHLIGHT_EMBEDDING_API_KEY")
	if !c.Embedding.APIKey.IsSet() && c.Embedding.Provider == "openai" {
		setSecret(&c.Embedding.APIKey, "OPENAI_API_KEY")
	}

	setDuration(&c.Sync.Interval, "SEARCHLIGHT_SYNC_INTERVAL")
	setString(&c.Server.Host, "SEARCHLIGHT_SERVER_HOST")
	setInt(&c.Server.Port, "SEARCHLIGHT_SERVER_PORT")
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	switch c.Provider.Type {
	case "":
	case "rest":
		if c.Provider.REST.BaseURL == "" {
			return fmt.Errorf("provider.rest.base_url is required for the rest provider")
		}
	case "dir":
		if c.Provider.Dir.Path == "" {
			return fmt.Errorf("provider.dir.path is required for the dir provider")
		}
	default:
		return fmt.Errorf("provider.type must be rest or dir, got %q", c.Provider.Type)
	}

	switch c.Embedding.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("embedding.provider must be openai or ollama, got %q", c.Embedding.Provider)
	}

	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Sync.Interval.Duration() <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval.Duration())
	}
	if c.Query.Limit <= 0 {
		return fmt.Errorf("query.limit must be positive, got %d", c.Query.Limit)
	}
	if c.Query.SignalTimeout.Duration() <= 0 {
		return fmt.Errorf("query.signal_timeout must be positive, got %s", c.Query.SignalTimeout.Duration())
	}
	if c.Query.RecencyHalfLife.Duration() <= 0 {
		return fmt.Errorf("query.recency_half_life must be positive, got %s", c.Query.RecencyHalfLife.Duration())
	}
	if c.Query.VectorWeight < 0 || c.Query.KeywordWeight < 0 || c.Query.RecencyWeight < 0 {
		return fmt.Errorf("query weights must be non-negative")
	}
	if c.Query.VectorWeight+c.Query.KeywordWeight+c.Query.RecencyWeight <= 0 {
		return fmt.Errorf("query weights must not all be zero")
	}
	if c.Cache.Enabled && c.Cache.TTL.Duration() <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL.Duration())
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "searchlight.db")
}

// VectorPath returns the chromem persistence directory.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir, "vectors")
}

// KeywordPath returns the bleve index directory.
func (c *Config) KeywordPath() string {
	return filepath.Join(c.DataDir, "keyword.bleve")
}

// ServerAddr returns the host:port the HTTP server binds to.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setSecret(dst *Secret, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = Secret(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = Duration(d)
		}
	}
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
