package longtermmemory

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/jobrunner"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/store"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
	"github.com/codeready-toolchain/htm/pkg/workingmemory"
)

// fakeStore is an in-memory implementation of Store for testing the
// longtermmemory write and read paths without a database.
type fakeStore struct {
	nodes      map[int64]*models.Node
	nextID     int64
	hashIndex  map[string]int64 // active content_hash -> node id
	tags       map[int64][]string
	robotNodes map[int64]int64 // robotID -> last nodeID (unused detail, kept minimal)
	touched    []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:     make(map[int64]*models.Node),
		hashIndex: make(map[string]int64),
		tags:      make(map[int64][]string),
	}
}

func (s *fakeStore) CreateNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata) (int64, error) {
	if existingID, ok := s.hashIndex[contentHash]; ok {
		return 0, &htmerr.DuplicateContentError{ContentHash: contentHash, ExistingNodeID: existingID}
	}
	s.nextID++
	id := s.nextID
	s.nodes[id] = &models.Node{
		ID:          id,
		Content:     content,
		ContentHash: contentHash,
		TokenCount:  tokenCount,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.hashIndex[contentHash] = id
	return id, nil
}

func (s *fakeStore) FindByID(ctx context.Context, nodeID int64) (*models.Node, error) {
	n, ok := s.nodes[nodeID]
	if !ok || n.DeletedAt != nil {
		return nil, htmerr.NewNotFoundError("node", "")
	}
	return n, nil
}

func (s *fakeStore) FindByHash(ctx context.Context, hash string) (*models.Node, error) {
	id, ok := s.hashIndex[hash]
	if !ok {
		return nil, htmerr.NewNotFoundError("node", "")
	}
	return s.nodes[id], nil
}

func (s *fakeStore) UpsertRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error) {
	return &models.RobotNode{RobotID: robotID, NodeID: nodeID}, nil
}

func (s *fakeStore) SetWorkingMemoryFlag(ctx context.Context, robotID, nodeID int64, inMemory bool) error {
	return nil
}

func (s *fakeStore) UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error {
	for _, t := range s.tags[nodeID] {
		if t == tagName {
			return nil
		}
	}
	s.tags[nodeID] = append(s.tags[nodeID], tagName)
	return nil
}

func (s *fakeStore) HasAnyTags(ctx context.Context, nodeID int64) (bool, error) {
	return len(s.tags[nodeID]) > 0, nil
}

func (s *fakeStore) UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return htmerr.NewNotFoundError("node", "")
	}
	n.Embedding = &vec
	n.EmbeddingDimension = &origDim
	return nil
}

func (s *fakeStore) SoftDelete(ctx context.Context, nodeID int64) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return htmerr.NewNotFoundError("node", "")
	}
	now := time.Now()
	n.DeletedAt = &now
	delete(s.hashIndex, n.ContentHash)
	return nil
}

func (s *fakeStore) Restore(ctx context.Context, nodeID int64) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return htmerr.NewNotFoundError("node", "")
	}
	n.DeletedAt = nil
	s.hashIndex[n.ContentHash] = nodeID
	return nil
}

func (s *fakeStore) PurgeNode(ctx context.Context, nodeID int64) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return htmerr.NewNotFoundError("node", "")
	}
	delete(s.hashIndex, n.ContentHash)
	delete(s.nodes, nodeID)
	return nil
}

func (s *fakeStore) TouchAccess(ctx context.Context, nodeIDs []int64) error {
	s.touched = append(s.touched, nodeIDs...)
	return nil
}

func (s *fakeStore) SearchTags(ctx context.Context, query string, minSimilarity float64, limit int) ([]models.Tag, error) {
	return nil, nil
}

func (s *fakeStore) VectorSearch(ctx context.Context, query pgvector.Vector, k int, minSimilarity float64, f store.SearchFilter) ([]store.SearchResult, error) {
	var out []store.SearchResult
	for _, n := range s.nodes {
		if n.DeletedAt != nil || n.Embedding == nil {
			continue
		}
		out = append(out, store.SearchResult{Node: *n, Score: 0.9})
	}
	return out, nil
}

func (s *fakeStore) FulltextSearch(ctx context.Context, query string, k int, f store.SearchFilter) ([]store.SearchResult, error) {
	var out []store.SearchResult
	for _, n := range s.nodes {
		if n.DeletedAt != nil {
			continue
		}
		out = append(out, store.SearchResult{Node: *n, Score: 0.5})
	}
	return out, nil
}

func (s *fakeStore) ByTopic(ctx context.Context, topic string, fuzzy bool, minSimilarity float64, k int, f store.SearchFilter) ([]store.SearchResult, error) {
	var out []store.SearchResult
	for id, n := range s.nodes {
		if n.DeletedAt != nil {
			continue
		}
		for _, t := range s.tags[id] {
			if t == topic {
				out = append(out, store.SearchResult{Node: *n})
				break
			}
		}
	}
	return out, nil
}

// HybridSearch here only exercises Hybrid's pass-through of weights/fanOut;
// it does not reproduce pkg/store.HybridSearch's SQL merge logic, so it
// can't stand in for pkg/store/store_test.go's scoring coverage.
func (s *fakeStore) HybridSearch(ctx context.Context, query pgvector.Vector, queryText string, queryTags []string, k, fanOut int, weightVector, weightTag float64, f store.SearchFilter) ([]store.SearchResult, error) {
	vec, _ := s.VectorSearch(ctx, query, k*fanOut, 0, f)
	ft, _ := s.FulltextSearch(ctx, queryText, k*fanOut, f)
	merged := make(map[int64]store.SearchResult)
	for _, r := range vec {
		merged[r.Node.ID] = store.SearchResult{Node: r.Node, Score: weightVector * r.Score}
	}
	for _, r := range ft {
		existing, ok := merged[r.Node.ID]
		tagBoost := 0.0
		for _, t := range s.tags[r.Node.ID] {
			for _, qt := range queryTags {
				if t == qt {
					tagBoost = 1
				}
			}
		}
		if ok {
			existing.Score += weightTag * tagBoost
			merged[r.Node.ID] = existing
		} else {
			merged[r.Node.ID] = store.SearchResult{Node: r.Node, Score: weightTag * tagBoost}
		}
	}
	out := make([]store.SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out, nil
}

type fakeEmbedGen struct{}

func (fakeEmbedGen) Embed(text string) ([]float32, error) { return []float32{1, 2, 3}, nil }

type fakeTagExtractor struct{ names []string }

func (f fakeTagExtractor) ExtractTags(text string, ontology []string) ([]string, error) {
	return f.names, nil
}

type fakeStatsSource struct{}

func (fakeStatsSource) ActiveTagStats(ctx context.Context) ([]tagindex.TagStats, error) {
	return nil, nil
}

func newTestMemory(t *testing.T) (*LongTermMemory, *fakeStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.CacheSize = 1000
	st := newFakeStore()
	embeddingSvc := llmsvc.NewEmbeddingService(fakeEmbedGen{}, cfg.StorageEmbeddingWidth)
	tagSvc := llmsvc.NewTagService(fakeTagExtractor{}, tagindex.NewValidator(cfg.MaxTagDepth))
	sampler := tagindex.NewSampler(fakeStatsSource{}, cfg.TagOntologySampleSize)
	validator := tagindex.NewValidator(cfg.MaxTagDepth)
	jobs := jobrunner.NewInline()
	m := New(cfg, st, embeddingSvc, tagSvc, sampler, validator, jobs)
	return m, st
}

func TestRemember_DeduplicatesIdenticalContent(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	id1, err := m.Remember(ctx, 1, "the database schema uses UUIDs", nil, nil, nil)
	require.NoError(t, err)

	id2, err := m.Remember(ctx, 2, "the database schema uses UUIDs", nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "identical content from a different robot must resolve to the same node")
}

func TestRemember_EnqueuesEmbeddingWhenMissing(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "content needing an embedding", nil, nil, nil)
	require.NoError(t, err)

	node := st.nodes[id]
	require.NotNil(t, node.Embedding, "inline job runner must have embedded synchronously")
}

func TestRemember_SkipsTagExtractionWhenManualTagsGiven(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "manually tagged content", []string{"topic:databases"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"topic:databases"}, st.tags[id])
}

func TestRemember_AddsToWorkingMemoryWhenProvided(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()
	wm := workingmemory.New(10_000)

	id, err := m.Remember(ctx, 1, "remembered into working memory", nil, nil, wm)
	require.NoError(t, err)

	assert.True(t, wm.Contains(id))
}

func TestForgetThenRestore_NodeSurvivesRecall(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "something forgettable", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Forget(ctx, id))
	_, err = st.FindByID(ctx, id)
	assert.True(t, htmerr.IsNotFound(err))

	require.NoError(t, m.Restore(ctx, id))
	n, err := st.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
}

func TestPurge_RemovesNodePermanently(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "purge me", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Purge(ctx, id))
	assert.Nil(t, st.nodes[id])
}

func TestRemember_RejectsEmptyContent(t *testing.T) {
	m, _ := newTestMemory(t)
	_, err := m.Remember(context.Background(), 1, "", nil, nil, nil)
	assert.True(t, htmerr.IsValidationError(err))
}

func TestVector_TracksAccessOnResults(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "vector searchable content", nil, nil, nil)
	require.NoError(t, err)

	results, err := m.Vector(ctx, "searchable content", Query{K: 5}, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, st.touched, id)
}

func TestHybrid_CombinesVectorAndTagSignal(t *testing.T) {
	m, st := newTestMemory(t)
	ctx := context.Background()

	id, err := m.Remember(ctx, 1, "hybrid search content", []string{"topic:databases"}, nil, nil)
	require.NoError(t, err)
	_ = st

	results, err := m.Hybrid(ctx, "hybrid search content", []string{"topic:databases"}, Query{K: 5}, nil, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].Node.ID)
}

func TestResolveAutoTimeframe_ExtractsLastWeek(t *testing.T) {
	m, _ := newTestMemory(t)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	cleaned, ranges, err := m.ResolveAutoTimeframe("what did we discuss last week about databases", now)
	require.NoError(t, err)
	assert.NotContains(t, cleaned, "last week")
	assert.Contains(t, cleaned, "databases")
	require.Len(t, ranges, 1)
	assert.True(t, ranges[0].End.Before(now))
}

func TestCache_InvalidatedOnWrite(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := m.Remember(ctx, 1, "cached content one", nil, nil, nil)
	require.NoError(t, err)

	_, err = m.Fulltext(ctx, "cached", Query{K: 5}, time.Now())
	require.NoError(t, err)

	_, err = m.Remember(ctx, 1, "cached content two", nil, nil, nil)
	require.NoError(t, err)

	results, err := m.Fulltext(ctx, "cached", Query{K: 5}, time.Now())
	require.NoError(t, err)
	assert.Len(t, results, 2, "second write must have invalidated the cached single-result set")
}
