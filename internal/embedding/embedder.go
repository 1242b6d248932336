// Package embedding turns text into fixed-dimension vectors using a
// Genkit embedder.
//
// The underlying embedder is loaded lazily on first use and shared
// read-only by all requests for the process lifetime. Loading is guarded
// so concurrent first callers trigger exactly one initialization.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

var (
	// ErrConfiguration indicates a startup-fatal embedding misconfiguration.
	ErrConfiguration = errors.New("embedding configuration error")

	// ErrDimensionMismatch indicates the model produced vectors whose
	// dimension does not match the vector store's column. Not
	// runtime-recoverable.
	ErrDimensionMismatch = fmt.Errorf("%w: embedder dimension mismatch", ErrConfiguration)

	// ErrEmbedding indicates the model failed to produce embeddings.
	// The orchestrator recovers by treating retrieval as empty.
	ErrEmbedding = errors.New("embedding failed")
)

// Factory produces the underlying embedder. It runs at most once per
// successful load; a failed load is retried on the next call.
type Factory func(ctx context.Context) (ai.Embedder, error)

// Generator generates embeddings with a lazily loaded model.
// Safe for concurrent use.
type Generator struct {
	factory   Factory
	dimension int
	logger    *slog.Logger

	mu       sync.Mutex
	embedder ai.Embedder
}

// New creates a Generator. dimension must match the vector store's
// column; every produced vector is checked against it.
func New(factory Factory, dimension int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		factory:   factory,
		dimension: dimension,
		logger:    logger,
	}
}

// Dimension returns the configured vector dimension.
func (g *Generator) Dimension() int { return g.dimension }

// instance returns the loaded embedder, loading it under the lock on
// first use. Exactly one load occurs even when first calls race; a load
// failure leaves the Generator unloaded so a later call can retry.
func (g *Generator) instance(ctx context.Context) (ai.Embedder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.embedder != nil {
		return g.embedder, nil
	}

	e, err := g.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading embedder: %w", ErrEmbedding, err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: factory returned no embedder", ErrConfiguration)
	}

	g.embedder = e
	g.logger.Info("embedding model loaded", "dimension", g.dimension)
	return e, nil
}

// Embed generates one vector per input text, in input order.
// An empty input returns an empty result without touching the model.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embedder, err := g.instance(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbedding, i)
		}
		if len(emb.Embedding) != g.dimension {
			return nil, fmt.Errorf("%w: model produced %d dimensions, store expects %d",
				ErrDimensionMismatch, len(emb.Embedding), g.dimension)
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}

// EmbedOne generates a vector for a single text.
func (g *Generator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
