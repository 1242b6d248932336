package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Postgres stores chunks in the tenant_embeddings table using pgvector
// for cosine similarity. Safe for concurrent use; all concurrency is
// delegated to the connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres store backed by an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

func (p *Postgres) Insert(ctx context.Context, tenantID int64, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.TenantID != tenantID {
			return fmt.Errorf("chunk tenant %d does not match %d", c.TenantID, tenantID)
		}
		if !c.SourceType.Valid() {
			return fmt.Errorf("invalid source type %q", c.SourceType)
		}
		batch.Queue(`
			INSERT INTO tenant_embeddings
				(tenant_id, source_type, source_id, chunk_index, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.TenantID, string(c.SourceType), c.SourceID, c.ChunkIndex,
			c.Content, pgvector.NewVector(c.Embedding), c.Metadata,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	p.logger.Debug("inserted embedding chunks", "tenant_id", tenantID, "count", len(chunks))
	return nil
}

func (p *Postgres) DeleteBySource(ctx context.Context, tenantID int64, sourceType SourceType, sourceID int64) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM tenant_embeddings
		WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3`,
		tenantID, string(sourceType), sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting source embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) DeleteByTenant(ctx context.Context, tenantID int64) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM tenant_embeddings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("deleting tenant embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SimilaritySearch ranks the tenant's chunks by cosine similarity to the
// query embedding. The <=> operator is cosine distance, so similarity is
// 1 - distance; ties break on insertion order via id.
func (p *Postgres) SimilaritySearch(ctx context.Context, tenantID int64, embedding []float32, k int, minSimilarity float64) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx, `
		SELECT id, source_type, source_id, chunk_index, content, metadata,
		       1 - (embedding <=> $2) AS similarity
		FROM tenant_embeddings
		WHERE tenant_id = $1
		  AND 1 - (embedding <=> $2) > $3
		ORDER BY embedding <=> $2, id
		LIMIT $4`,
		tenantID, vec, minSimilarity, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var sourceType string
		if err := rows.Scan(&m.ID, &sourceType, &m.SourceID, &m.ChunkIndex,
			&m.Content, &m.Metadata, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.SourceType = SourceType(sourceType)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}

	return matches, nil
}

func (p *Postgres) Count(ctx context.Context, tenantID int64) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tenant_embeddings WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tenant embeddings: %w", err)
	}
	return count, nil
}
