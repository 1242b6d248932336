// Package vectorstore persists embedding chunks and answers tenant-scoped
// similarity queries over them.
package vectorstore

import "context"

// SourceType identifies the origin kind of an embedded chunk.
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceLink     SourceType = "link"
)

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	return t == SourceDocument || t == SourceLink
}

// Chunk is one embeddable unit of source content.
type Chunk struct {
	TenantID   int64
	SourceType SourceType
	SourceID   int64
	ChunkIndex int
	Content    string
	Embedding  []float32
	Metadata   map[string]any
}

// Match is a chunk returned from similarity search. Similarity is
// 1 - cosine distance, in [-1, 1].
type Match struct {
	ID         int64
	SourceType SourceType
	SourceID   int64
	ChunkIndex int
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// Store is the persistence boundary for embedding chunks.
//
// All reads and writes are scoped by tenant; no operation may return or
// affect rows belonging to another tenant.
type Store interface {
	// Insert stores chunks for a tenant. All chunks must carry the same
	// tenant as tenantID.
	Insert(ctx context.Context, tenantID int64, chunks []Chunk) error

	// DeleteBySource removes every chunk of one source and returns the
	// number of rows removed. Deleting a missing source removes zero.
	DeleteBySource(ctx context.Context, tenantID int64, sourceType SourceType, sourceID int64) (int64, error)

	// DeleteByTenant removes all of a tenant's chunks.
	DeleteByTenant(ctx context.Context, tenantID int64) (int64, error)

	// SimilaritySearch returns up to k chunks of the tenant whose
	// similarity to embedding strictly exceeds minSimilarity, ordered by
	// descending similarity.
	SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int, minSimilarity float64) ([]Match, error)

	// Count returns the number of stored chunks for a tenant.
	Count(ctx context.Context, tenantID int64) (int64, error)
}
