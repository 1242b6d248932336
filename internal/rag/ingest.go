package rag

import (
	"context"
	"fmt"

	"github.com/askbase/askbase/internal/chunker"
	"github.com/askbase/askbase/internal/vectorstore"
)

// IngestRequest carries one source's raw text for (re)embedding.
type IngestRequest struct {
	TenantID   int64
	SourceType vectorstore.SourceType
	SourceID   int64
	Text       string
	Metadata   map[string]any
}

// IngestResult reports what ingestion stored.
type IngestResult struct {
	ChunksCreated    int   `json:"chunks_created"`
	EmbeddingsStored int   `json:"embeddings_stored"`
	Replaced         int64 `json:"replaced"`
}

// EmbedAndStore chunks, embeds, and stores a source's text, replacing
// any chunks previously stored for the same source. The old chunks are
// only removed once the new embeddings are ready, so a failed embedding
// run leaves the previous content searchable.
func (s *Service) EmbedAndStore(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if !req.SourceType.Valid() {
		return nil, fmt.Errorf("invalid source type %q", req.SourceType)
	}

	texts := chunker.Split(req.Text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}

	chunks := make([]vectorstore.Chunk, len(texts))
	for i, text := range texts {
		metadata := make(map[string]any, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		metadata["chunk_index"] = i

		chunks[i] = vectorstore.Chunk{
			TenantID:   req.TenantID,
			SourceType: req.SourceType,
			SourceID:   req.SourceID,
			ChunkIndex: i,
			Content:    text,
			Embedding:  vectors[i],
			Metadata:   metadata,
		}
	}

	replaced, err := s.store.DeleteBySource(ctx, req.TenantID, req.SourceType, req.SourceID)
	if err != nil {
		return nil, fmt.Errorf("removing previous chunks: %w", err)
	}

	if err := s.store.Insert(ctx, req.TenantID, chunks); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.Info("source embedded",
		"tenant_id", req.TenantID,
		"source_type", req.SourceType,
		"source_id", req.SourceID,
		"chunks", len(chunks),
		"replaced", replaced,
	)

	return &IngestResult{
		ChunksCreated:    len(texts),
		EmbeddingsStored: len(chunks),
		Replaced:         replaced,
	}, nil
}

// DeleteSource removes all chunks stored for one source.
func (s *Service) DeleteSource(ctx context.Context, tenantID int64, sourceType vectorstore.SourceType, sourceID int64) (int64, error) {
	deleted, err := s.store.DeleteBySource(ctx, tenantID, sourceType, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting source: %w", err)
	}
	s.logger.Info("source deleted",
		"tenant_id", tenantID,
		"source_type", sourceType,
		"source_id", sourceID,
		"deleted", deleted,
	)
	return deleted, nil
}

// DeleteTenant purges a tenant's chunks and sessions.
func (s *Service) DeleteTenant(ctx context.Context, tenantID int64) (int64, error) {
	deleted, err := s.store.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("deleting tenant embeddings: %w", err)
	}

	sessions, err := s.sessions.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return deleted, fmt.Errorf("deleting tenant sessions: %w", err)
	}

	s.logger.Info("tenant purged",
		"tenant_id", tenantID,
		"embeddings_deleted", deleted,
		"sessions_deleted", sessions,
	)
	return deleted, nil
}
