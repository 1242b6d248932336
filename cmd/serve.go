package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/askbase/askbase/db"
	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/embedding"
	"github.com/askbase/askbase/internal/generation"
	"github.com/askbase/askbase/internal/log"
	"github.com/askbase/askbase/internal/rag"
	"github.com/askbase/askbase/internal/session"
	"github.com/askbase/askbase/internal/tenant"
	"github.com/askbase/askbase/internal/vectorstore"
)

const platformClientTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	slog.SetDefault(logger)
	logger.Info("starting askbase", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, cleanup, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	embedder := embedding.New(newEmbedderFactory(cfg, logger), cfg.EmbeddingDimension, logger)
	store := vectorstore.NewPostgres(pool, logger)
	sessions := session.NewStore(pool, logger)
	generator := generation.NewOllama(generation.OllamaConfig{
		BaseURL:           cfg.GenerationURL,
		Model:             cfg.GenerationModel,
		Timeout:           cfg.GenerationTimeout,
		ConnectTimeout:    cfg.ConnectTimeout,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		MaxGenerateTokens: cfg.MaxGenerateTokens,
	}, logger)

	service := rag.New(rag.Config{
		Model:               cfg.GenerationModel,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
		PlatformPrompt:      cfg.PlatformPrompt,
	}, embedder, store, sessions, generator, logger)

	tenants := tenant.NewClient(cfg.PlatformURL, platformClientTimeout, logger)

	server, err := api.NewServer(api.ServerConfig{
		Addr:               cfg.ListenAddr,
		InternalAPIKey:     cfg.InternalAPIKey,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		DB:                 pool,
	}, api.NewHandlers(service, tenants, logger))
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return server.Run(ctx)
}

// newDBPool runs migrations and opens a bounded connection pool.
func newDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// newEmbedderFactory builds the lazy embedder loader for the configured
// provider. Genkit initialization happens on first use, inside the
// embedding generator's single-load guard.
func newEmbedderFactory(cfg *config.Config, logger *slog.Logger) embedding.Factory {
	return func(ctx context.Context) (ai.Embedder, error) {
		switch cfg.Provider {
		case config.ProviderOllama:
			ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
			g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
			if g == nil {
				return nil, errors.New("initializing genkit with ollama provider")
			}
			// Ollama requires explicit embedder registration, keyed by
			// server address.
			ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
			logger.Info("initialized ollama embedder",
				"model", cfg.EmbedderModel, "host", cfg.OllamaHost)
			return ollama.Embedder(g, cfg.OllamaHost), nil

		default: // gemini
			g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			if g == nil {
				return nil, errors.New("initializing genkit with gemini provider")
			}
			logger.Info("initialized gemini embedder", "model", cfg.EmbedderModel)
			return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil
		}
	}
}
