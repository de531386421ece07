package jobrunner

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

// EmbeddingStore is the store surface GenerateEmbeddingJob needs.
// pkg/store.Store satisfies it directly.
type EmbeddingStore interface {
	FindByID(ctx context.Context, nodeID int64) (*models.Node, error)
	UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error
}

// GenerateEmbeddingJob builds the job named in spec.md §4.3: no-op if the
// node already has an embedding; otherwise calls the embedding service and
// writes the result back.
func GenerateEmbeddingJob(store EmbeddingStore, svc *llmsvc.EmbeddingService, nodeID int64) Job {
	return Job{
		Name:    "generate_embedding",
		Payload: map[string]any{"node_id": nodeID},
		Run: func(ctx context.Context) error {
			node, err := store.FindByID(ctx, nodeID)
			if err != nil {
				if htmerr.IsNotFound(err) {
					return nil // node deleted before the job ran
				}
				return err
			}
			if node.Embedding != nil {
				return nil
			}

			vec, origDim, err := svc.Embed(nodeID, node.Content)
			if err != nil {
				return err
			}
			return store.UpdateEmbedding(ctx, nodeID, vec, origDim)
		},
	}
}

// TagStore is the store surface GenerateTagsJob needs. pkg/store.Store
// satisfies it directly.
type TagStore interface {
	FindByID(ctx context.Context, nodeID int64) (*models.Node, error)
	HasAnyTags(ctx context.Context, nodeID int64) (bool, error)
	UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error
}

// GenerateTagsJob builds the job named in spec.md §4.3: no-op if the node
// already carries tags (from manual tagging or a prior run); otherwise
// samples the ontology, extracts tags, and attaches them.
func GenerateTagsJob(store TagStore, sampler *tagindex.Sampler, svc *llmsvc.TagService, nodeID int64) Job {
	return Job{
		Name:    "generate_tags",
		Payload: map[string]any{"node_id": nodeID},
		Run: func(ctx context.Context) error {
			node, err := store.FindByID(ctx, nodeID)
			if err != nil {
				if htmerr.IsNotFound(err) {
					return nil
				}
				return err
			}

			hasTags, err := store.HasAnyTags(ctx, nodeID)
			if err != nil {
				return err
			}
			if hasTags {
				return nil
			}

			ontology, err := sampler.Sample(ctx)
			if err != nil {
				return err
			}

			names, err := svc.ExtractTags(nodeID, node.Content, ontology)
			if err != nil {
				return err
			}

			for _, name := range names {
				if err := store.UpsertNodeTag(ctx, nodeID, name); err != nil {
					return fmt.Errorf("attach extracted tag %q to node %d: %w", name, nodeID, err)
				}
			}
			return nil
		},
	}
}
