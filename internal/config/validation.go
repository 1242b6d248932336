package config

import (
	"fmt"
)

var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for startup-fatal problems.
// Dimension and chunking mismatches are configuration errors, not
// runtime-recoverable ones, so they fail here rather than per request.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (must be %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: %d (must be 1-4096 and match the vector column)",
			ErrInvalidDimension, c.EmbeddingDimension)
	}

	if c.ChunkSize < 100 {
		return fmt.Errorf("%w: chunk_size %d too small (min 100)", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.SimilarityThreshold < -1 || c.SimilarityThreshold >= 1 {
		return fmt.Errorf("%w: %v (must be in [-1, 1))", ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.GenerationURL == "" {
		return ErrInvalidGenerationURL
	}

	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe extends Validate with requirements that only apply when
// running the HTTP server (the internal ingestion surface needs a key).
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.InternalAPIKey == "" {
		return ErrMissingInternalAPIKey
	}
	return nil
}
