// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, ASKBASE_ prefix)
//  2. Config file (~/.askbase/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedding: provider, embedder model, vector dimension
//   - Generation: backend URL, model, sampling parameters, timeouts
//   - Retrieval: chunk size/overlap, top-K, similarity threshold
//   - Storage: PostgreSQL connection (see storage.go)
//   - Platform: tenant/auth service endpoint and internal API key
//
// Sensitive values (passwords, API keys) are never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidGenerationURL indicates the generation backend URL is empty.
	ErrInvalidGenerationURL = errors.New("invalid generation backend URL")

	// ErrMissingInternalAPIKey indicates the internal API key is not set.
	ErrMissingInternalAPIKey = errors.New("missing internal API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config stores application configuration.
type Config struct {
	// Embedding configuration
	Provider           string `mapstructure:"provider"`        // "gemini" (default) or "ollama"
	EmbedderModel      string `mapstructure:"embedder_model"`  // e.g. "gemini-embedding-001", "nomic-embed-text"
	EmbeddingDimension int    `mapstructure:"embedding_dimension"`
	OllamaHost         string `mapstructure:"ollama_host"` // Only used when provider is "ollama"

	// Generation backend configuration
	GenerationURL     string        `mapstructure:"generation_url"`
	GenerationModel   string        `mapstructure:"generation_model"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Temperature       float64       `mapstructure:"temperature"`
	TopP              float64       `mapstructure:"top_p"`
	MaxGenerateTokens int           `mapstructure:"max_generate_tokens"`

	// Retrieval configuration
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Platform collaborator (tenant/auth service)
	PlatformURL    string `mapstructure:"platform_url"`
	InternalAPIKey string `mapstructure:"internal_api_key"` // SENSITIVE: never logged

	// PlatformPrompt overrides the built-in operator prompt when set.
	PlatformPrompt string `mapstructure:"platform_prompt"`

	// HTTP server
	ListenAddr         string `mapstructure:"listen_addr"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".askbase")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("ASKBASE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("embedding_dimension", 768)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("generation_url", "http://localhost:11434")
	v.SetDefault("generation_model", "mistral:7b")
	v.SetDefault("generation_timeout", 5*time.Minute)
	v.SetDefault("connect_timeout", 30*time.Second)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("max_generate_tokens", 500)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("top_k", 5)
	v.SetDefault("similarity_threshold", 0.1)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "askbase")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "askbase")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("platform_url", "http://localhost:8069")
	v.SetDefault("internal_api_key", "")
	v.SetDefault("platform_prompt", "")

	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("rate_limit_per_minute", 100)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// SlogLevel maps the configured log level string onto slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
