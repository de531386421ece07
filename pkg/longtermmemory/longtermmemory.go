// Package longtermmemory implements the write and read paths of spec.md
// §4.5: remember (dedup, manual tagging, async enrichment enqueue), the
// five search primitives over pkg/store, access-count tracking, and the
// soft-delete/restore lifecycle — wrapped in a query-result cache that a
// write invalidates wholesale.
//
// The write path mirrors tarsy's pkg/services/session_service.go
// CreateSession: validate, persist, map a unique-constraint collision to a
// typed error the caller can treat as "already exists".
package longtermmemory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/jobrunner"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
	"github.com/codeready-toolchain/htm/pkg/timeframe"
	"github.com/codeready-toolchain/htm/pkg/workingmemory"
)

// Store is the persistence surface LongTermMemory needs from pkg/store.
type Store interface {
	CreateNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata) (int64, error)
	FindByID(ctx context.Context, nodeID int64) (*models.Node, error)
	FindByHash(ctx context.Context, hash string) (*models.Node, error)
	UpsertRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error)
	SetWorkingMemoryFlag(ctx context.Context, robotID, nodeID int64, inMemory bool) error
	UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error
	HasAnyTags(ctx context.Context, nodeID int64) (bool, error)
	UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error
	SoftDelete(ctx context.Context, nodeID int64) error
	Restore(ctx context.Context, nodeID int64) error
	PurgeNode(ctx context.Context, nodeID int64) error
	TouchAccess(ctx context.Context, nodeIDs []int64) error
	SearchTags(ctx context.Context, query string, minSimilarity float64, limit int) ([]models.Tag, error)
	VectorSearch(ctx context.Context, query pgvector.Vector, k int, minSimilarity float64, f store.SearchFilter) ([]store.SearchResult, error)
	FulltextSearch(ctx context.Context, query string, k int, f store.SearchFilter) ([]store.SearchResult, error)
	ByTopic(ctx context.Context, topic string, fuzzy bool, minSimilarity float64, k int, f store.SearchFilter) ([]store.SearchResult, error)
	HybridSearch(ctx context.Context, query pgvector.Vector, queryText string, queryTags []string, k, fanOut int, weightVector, weightTag float64, f store.SearchFilter) ([]store.SearchResult, error)
}

// LongTermMemory is the shared, store-backed memory every robot reads and
// writes through (spec.md §4.5).
type LongTermMemory struct {
	store        Store
	cfg          *config.Config
	embeddingSvc *llmsvc.EmbeddingService
	tagSvc       *llmsvc.TagService
	sampler      *tagindex.Sampler
	tagValidator *tagindex.Validator
	jobs         jobrunner.Runner
	cache        *cache.Cache
}

// New builds a LongTermMemory from its collaborators.
func New(
	cfg *config.Config,
	st Store,
	embeddingSvc *llmsvc.EmbeddingService,
	tagSvc *llmsvc.TagService,
	sampler *tagindex.Sampler,
	tagValidator *tagindex.Validator,
	jobs jobrunner.Runner,
) *LongTermMemory {
	var c *cache.Cache
	if cfg.CacheSize > 0 {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		c = cache.New(ttl, 2*ttl)
	}
	return &LongTermMemory{
		store:        st,
		cfg:          cfg,
		embeddingSvc: embeddingSvc,
		tagSvc:       tagSvc,
		sampler:      sampler,
		tagValidator: tagValidator,
		jobs:         jobs,
		cache:        c,
	}
}

// Remember implements spec.md §4.5 remember: validate, hash, dedup, upsert
// robot_node and manual tags, enqueue enrichment jobs, add to the caller's
// working memory, and invalidate the query cache.
func (m *LongTermMemory) Remember(ctx context.Context, robotID int64, content string, manualTags []string, metadata models.Metadata, wm *workingmemory.Memory) (int64, error) {
	if err := m.validateRemember(content, manualTags); err != nil {
		return 0, err
	}
	if metadata == nil {
		metadata = models.NewMetadata()
	}

	tokenCount, err := m.cfg.TokenCounter.CountTokens(content)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	hash := contentHash(content)

	nodeID, err := m.store.CreateNode(ctx, content, hash, tokenCount, metadata)
	if err != nil {
		var dup *htmerr.DuplicateContentError
		if errors.As(err, &dup) {
			nodeID = dup.ExistingNodeID
		} else {
			return 0, err
		}
	}

	if _, err := m.store.UpsertRobotNode(ctx, robotID, nodeID); err != nil {
		return 0, err
	}

	validTags, _ := m.tagValidator.ValidateAll(manualTags)
	for _, tag := range validTags {
		if err := m.store.UpsertNodeTag(ctx, nodeID, tag); err != nil {
			return 0, err
		}
	}

	node, err := m.store.FindByID(ctx, nodeID)
	if err != nil {
		return 0, err
	}

	if node.Embedding == nil {
		if err := m.jobs.Enqueue(ctx, jobrunner.GenerateEmbeddingJob(m.store, m.embeddingSvc, nodeID)); err != nil {
			return 0, fmt.Errorf("enqueue embedding job: %w", err)
		}
	}
	if len(validTags) == 0 {
		if err := m.jobs.Enqueue(ctx, jobrunner.GenerateTagsJob(m.store, m.sampler, m.tagSvc, nodeID)); err != nil {
			return 0, fmt.Errorf("enqueue tags job: %w", err)
		}
	}

	if wm != nil {
		evicted, err := wm.Add(nodeID, node.Content, node.TokenCount, 1.0, false)
		if err != nil {
			return 0, err
		}
		for _, evictedID := range evicted {
			if err := m.store.SetWorkingMemoryFlag(ctx, robotID, evictedID, false); err != nil {
				return 0, err
			}
		}
	}

	m.invalidateCache()
	return nodeID, nil
}

func (m *LongTermMemory) validateRemember(content string, manualTags []string) error {
	if content == "" {
		return htmerr.NewValidationError("content", "must not be empty")
	}
	if len(content) > m.cfg.MaxContentBytes {
		return htmerr.NewValidationError("content", fmt.Sprintf("exceeds max_content_bytes %d", m.cfg.MaxContentBytes))
	}
	if len(manualTags) > m.cfg.MaxManualTags {
		return htmerr.NewValidationError("tags", fmt.Sprintf("exceeds max_manual_tags %d", m.cfg.MaxManualTags))
	}
	return nil
}

// Forget soft-deletes a node, invalidating the query cache.
func (m *LongTermMemory) Forget(ctx context.Context, nodeID int64) error {
	if err := m.store.SoftDelete(ctx, nodeID); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// Purge permanently deletes a node. Callers (the Facade) are responsible
// for enforcing the confirm=="confirmed" gate before calling this.
func (m *LongTermMemory) Purge(ctx context.Context, nodeID int64) error {
	if err := m.store.PurgeNode(ctx, nodeID); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

// Restore clears a node's deleted_at, invalidating the query cache.
func (m *LongTermMemory) Restore(ctx context.Context, nodeID int64) error {
	if err := m.store.Restore(ctx, nodeID); err != nil {
		return err
	}
	m.invalidateCache()
	return nil
}

func (m *LongTermMemory) invalidateCache() {
	if m.cache != nil {
		m.cache.Flush()
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// toWeekStart converts the caller-facing config.WeekStart into the
// timeframe package's own type.
func toWeekStart(ws config.WeekStart) timeframe.WeekStart {
	if ws == config.WeekStartMonday {
		return timeframe.Monday
	}
	return timeframe.Sunday
}

// resolveTimeframe parses a caller-supplied timeframe value (spec.md §6
// grammar) into store.TimeRange values, OR'd together. ":auto" is not
// accepted here — callers wanting §6's auto-extraction form use
// ResolveAutoTimeframe against the raw query text first.
func (m *LongTermMemory) resolveTimeframe(input any, now time.Time) ([]store.TimeRange, error) {
	ranges, err := timeframe.Parse(input, toWeekStart(m.cfg.WeekStart), now)
	if err != nil {
		return nil, err
	}
	return toStoreRanges(ranges), nil
}

// ResolveAutoTimeframe implements the ":auto" timeframe form (spec.md §6,
// scenario 5): extract a recognized time expression from query, returning
// the cleaned query text and the ranges it denotes.
func (m *LongTermMemory) ResolveAutoTimeframe(query string, now time.Time) (cleanedQuery string, ranges []store.TimeRange, err error) {
	cleaned, tfRanges, err := timeframe.ParseAuto(query, toWeekStart(m.cfg.WeekStart), now)
	if err != nil {
		return query, nil, err
	}
	return cleaned, toStoreRanges(tfRanges), nil
}

func toStoreRanges(ranges []timeframe.Range) []store.TimeRange {
	out := make([]store.TimeRange, len(ranges))
	for i, r := range ranges {
		out[i] = store.TimeRange{Start: r.Start, End: r.End}
	}
	return out
}

func marshalFilterKey(metadataFilter map[string]any) string {
	if len(metadataFilter) == 0 {
		return ""
	}
	b, _ := json.Marshal(metadataFilter)
	return string(b)
}
