package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// mockEmbedder is a simple mock implementation of ai.Embedder for testing
type mockEmbedder struct {
	dimension int
	err       error
	calls     atomic.Int64
}

func (m *mockEmbedder) Name() string {
	return "mock-embedder"
}

func (m *mockEmbedder) Register(_ api.Registry) {
	// No-op for testing
}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		vec := make([]float32, m.dimension)
		for j := range vec {
			vec[j] = float32(i + j)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func newTestGenerator(mock *mockEmbedder, dimension int, factoryCalls *atomic.Int64) *Generator {
	return New(func(context.Context) (ai.Embedder, error) {
		if factoryCalls != nil {
			factoryCalls.Add(1)
		}
		return mock, nil
	}, dimension, nil)
}

func TestEmbed(t *testing.T) {
	mock := &mockEmbedder{dimension: 4}
	gen := newTestGenerator(mock, 4, nil)

	vectors, err := gen.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Errorf("vector %d has dimension %d, want 4", i, len(vec))
		}
	}
	if vectors[0][0] != 0 || vectors[1][0] != 1 {
		t.Errorf("vectors out of input order: %v", vectors)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	mock := &mockEmbedder{dimension: 4}
	var factoryCalls atomic.Int64
	gen := newTestGenerator(mock, 4, &factoryCalls)

	vectors, err := gen.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
	if factoryCalls.Load() != 0 {
		t.Error("empty input should not load the model")
	}
	if mock.calls.Load() != 0 {
		t.Error("empty input should not call the model")
	}
}

func TestEmbed_LazyInitOnce(t *testing.T) {
	mock := &mockEmbedder{dimension: 4}
	var factoryCalls atomic.Int64
	gen := newTestGenerator(mock, 4, &factoryCalls)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gen.EmbedOne(context.Background(), "hello"); err != nil {
				t.Errorf("EmbedOne failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := factoryCalls.Load(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

func TestEmbed_FactoryFailureRetried(t *testing.T) {
	mock := &mockEmbedder{dimension: 4}
	var factoryCalls atomic.Int64
	gen := New(func(context.Context) (ai.Embedder, error) {
		if factoryCalls.Add(1) == 1 {
			return nil, errors.New("model unavailable")
		}
		return mock, nil
	}, 4, nil)

	if _, err := gen.EmbedOne(context.Background(), "hello"); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if _, err := gen.EmbedOne(context.Background(), "hello"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := factoryCalls.Load(); got != 2 {
		t.Errorf("factory called %d times, want 2", got)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	mock := &mockEmbedder{dimension: 3}
	gen := newTestGenerator(mock, 768, nil)

	_, err := gen.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Error("dimension mismatch should be a configuration error")
	}
}

func TestEmbed_ModelError(t *testing.T) {
	mock := &mockEmbedder{dimension: 4, err: errors.New("backend down")}
	gen := newTestGenerator(mock, 4, nil)

	_, err := gen.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	gen := New(func(context.Context) (ai.Embedder, error) {
		return &emptyEmbedder{}, nil
	}, 4, nil)

	_, err := gen.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

// emptyEmbedder returns no embeddings regardless of input.
type emptyEmbedder struct{}

func (*emptyEmbedder) Name() string { return "empty-embedder" }

func (*emptyEmbedder) Register(_ api.Registry) {}

func (*emptyEmbedder) Embed(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{}}, nil
}
