// Package llmsvc wraps the injected embedding_generator and tag_extractor
// capabilities (pkg/config.EmbeddingGenerator, config.TagExtractor) with
// the padding, dimension bookkeeping, and validation the core requires —
// the callables themselves stay stateless and provider-agnostic.
package llmsvc

import (
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
)

// EmbeddingService produces storage-width embeddings for node content.
type EmbeddingService struct {
	generator config.EmbeddingGenerator
	width     int
}

// NewEmbeddingService builds an EmbeddingService from the given generator
// and storage width (spec.md default 2000).
func NewEmbeddingService(generator config.EmbeddingGenerator, width int) *EmbeddingService {
	return &EmbeddingService{generator: generator, width: width}
}

// Embed calls the injected generator and pads (or rejects) the result to
// the configured storage width. It returns the padded vector and the
// original, pre-padding dimension.
func (s *EmbeddingService) Embed(nodeID int64, text string) (pgvector.Vector, int, error) {
	vec, err := s.generator.Embed(text)
	if err != nil {
		return pgvector.Vector{}, 0, &htmerr.EmbeddingError{NodeID: nodeID, Err: err}
	}

	origDim := len(vec)
	if origDim > s.width {
		return pgvector.Vector{}, 0, &htmerr.EmbeddingDimensionError{NodeID: nodeID, Got: origDim, MaxWidth: s.width}
	}

	padded := make([]float32, s.width)
	copy(padded, vec)

	return pgvector.NewVector(padded), origDim, nil
}

// Validate reports a htmerr.ConfigurationError if the embedding service is
// missing its required collaborator.
func (s *EmbeddingService) Validate() error {
	if s.generator == nil {
		return htmerr.NewConfigurationError("embedding_generator", "must be set")
	}
	if s.width <= 0 {
		return htmerr.NewConfigurationError("storage_embedding_width", fmt.Sprintf("must be positive, got %d", s.width))
	}
	return nil
}
