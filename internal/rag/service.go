// Package rag orchestrates the retrieval-augmented answer pipeline:
// chunking and embedding on the ingestion path, and retrieval, prompt
// composition, generation, and session persistence on the query path.
package rag

import (
	"context"
	"log/slog"

	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/vectorstore"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// SessionStore persists conversation history.
type SessionStore interface {
	AppendTurn(ctx context.Context, tenantID int64, sessionID, userMessage, botResponse string) error
	DeleteByTenant(ctx context.Context, tenantID int64) (int64, error)
}

// Generator produces an answer from the backend model.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config carries the orchestrator's tunables.
type Config struct {
	Model               string
	TopK                int
	SimilarityThreshold float64
	ChunkSize           int
	ChunkOverlap        int

	// PlatformPrompt overrides the built-in operator prompt when set.
	PlatformPrompt string
}

// Service is the RAG pipeline. All collaborators are injected once at
// startup and shared read-only; Service is safe for concurrent use.
type Service struct {
	cfg       Config
	embedder  Embedder
	store     vectorstore.Store
	sessions  SessionStore
	generator Generator
	logger    *slog.Logger
}

// New creates the pipeline service. Zero-value tunables get the
// defaults used in production.
func New(cfg Config, embedder Embedder, store vectorstore.Store, sessions SessionStore, generator Generator, logger *slog.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultTargetSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		embedder:  embedder,
		store:     store,
		sessions:  sessions,
		generator: generator,
		logger:    logger,
	}
}

// Health reports the tenant's stored embedding count.
func (s *Service) Health(ctx context.Context, tenantID int64) (int64, error) {
	return s.store.Count(ctx, tenantID)
}
