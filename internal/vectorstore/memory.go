package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and local development.
// A mutex guards the backing slice; search results follow the same
// ordering rules as the Postgres store.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   []memoryRow
}

type memoryRow struct {
	id    int64
	chunk Chunk
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Insert(_ context.Context, tenantID int64, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if c.TenantID != tenantID {
			return fmt.Errorf("chunk tenant %d does not match %d", c.TenantID, tenantID)
		}
		if !c.SourceType.Valid() {
			return fmt.Errorf("invalid source type %q", c.SourceType)
		}
		m.rows = append(m.rows, memoryRow{id: m.nextID, chunk: c})
		m.nextID++
	}
	return nil
}

func (m *Memory) DeleteBySource(_ context.Context, tenantID int64, sourceType SourceType, sourceID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []memoryRow
	var removed int64
	for _, row := range m.rows {
		c := row.chunk
		if c.TenantID == tenantID && c.SourceType == sourceType && c.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *Memory) DeleteByTenant(_ context.Context, tenantID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []memoryRow
	var removed int64
	for _, row := range m.rows {
		if row.chunk.TenantID == tenantID {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *Memory) SimilaritySearch(_ context.Context, tenantID int64, embedding []float32, k int, minSimilarity float64) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []Match
	for _, row := range m.rows {
		c := row.chunk
		if c.TenantID != tenantID {
			continue
		}
		sim := cosineSimilarity(embedding, c.Embedding)
		if sim <= minSimilarity {
			continue
		}
		matches = append(matches, Match{
			ID:         row.id,
			SourceType: c.SourceType,
			SourceID:   c.SourceID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Similarity: sim,
		})
	}

	// Stable keeps insertion order for equal similarities.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) Count(_ context.Context, tenantID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, row := range m.rows {
		if row.chunk.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
