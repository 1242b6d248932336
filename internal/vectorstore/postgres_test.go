package vectorstore_test

import (
	"context"
	"testing"

	"github.com/askbase/askbase/internal/testutil"
	"github.com/askbase/askbase/internal/vectorstore"
)

// unitVector768 builds a 768-dimension vector with a single 1 at index i,
// matching the tenant_embeddings column dimension.
func unitVector768(i int) []float32 {
	v := make([]float32, 768)
	v[i] = 1
	return v
}

func TestPostgres_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.NewPostgres(db.Pool, testutil.NewLogger())

	chunks := []vectorstore.Chunk{
		{TenantID: 1, SourceType: vectorstore.SourceDocument, SourceID: 10, ChunkIndex: 0,
			Content: "aligned", Embedding: unitVector768(0)},
		{TenantID: 1, SourceType: vectorstore.SourceDocument, SourceID: 10, ChunkIndex: 1,
			Content: "orthogonal", Embedding: unitVector768(1)},
		{TenantID: 1, SourceType: vectorstore.SourceLink, SourceID: 20, ChunkIndex: 0,
			Content: "link content", Embedding: unitVector768(2),
			Metadata: map[string]any{"url": "https://example.com"}},
	}
	if err := store.Insert(ctx, 1, chunks); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, 2, []vectorstore.Chunk{
		{TenantID: 2, SourceType: vectorstore.SourceDocument, SourceID: 30, ChunkIndex: 0,
			Content: "other tenant", Embedding: unitVector768(0)},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	t.Run("count", func(t *testing.T) {
		count, err := store.Count(ctx, 1)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 3 {
			t.Errorf("count = %d, want 3", count)
		}
	})

	t.Run("search is tenant scoped and ordered", func(t *testing.T) {
		matches, err := store.SimilaritySearch(ctx, 1, unitVector768(0), 10, 0.1)
		if err != nil {
			t.Fatalf("SimilaritySearch failed: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected 1 match above threshold, got %d", len(matches))
		}
		if matches[0].Content != "aligned" {
			t.Errorf("top match = %q, want aligned", matches[0].Content)
		}
		if matches[0].Similarity < 0.99 {
			t.Errorf("similarity = %f, want ~1", matches[0].Similarity)
		}
	})

	t.Run("search returns metadata", func(t *testing.T) {
		matches, err := store.SimilaritySearch(ctx, 1, unitVector768(2), 1, 0.5)
		if err != nil {
			t.Fatalf("SimilaritySearch failed: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		if matches[0].Metadata["url"] != "https://example.com" {
			t.Errorf("metadata = %v, want url preserved", matches[0].Metadata)
		}
	})

	t.Run("delete by source", func(t *testing.T) {
		removed, err := store.DeleteBySource(ctx, 1, vectorstore.SourceDocument, 10)
		if err != nil {
			t.Fatalf("DeleteBySource failed: %v", err)
		}
		if removed != 2 {
			t.Errorf("removed = %d, want 2", removed)
		}

		count, err := store.Count(ctx, 1)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("count after delete = %d, want 1", count)
		}
	})

	t.Run("delete by tenant leaves others", func(t *testing.T) {
		if _, err := store.DeleteByTenant(ctx, 1); err != nil {
			t.Fatalf("DeleteByTenant failed: %v", err)
		}
		count, err := store.Count(ctx, 2)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("other tenant count = %d, want 1", count)
		}
	})
}
