package filesource

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/jobrunner"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

type fakeFileReader struct {
	files map[string]string
}

func (f *fakeFileReader) ReadFile(path string) (string, map[string]string, time.Time, error) {
	content, ok := f.files[path]
	if !ok {
		return "", nil, time.Time{}, htmerr.NewNotFoundError("file", path)
	}
	return content, map[string]string{"title": path}, time.Now(), nil
}

type fixedTokenCounter struct{}

func (fixedTokenCounter) CountTokens(text string) (int, error) {
	return len(text) / 4, nil
}

type fakeLoaderStore struct {
	nextNodeID   int64
	nextSourceID int64
	nodes        map[int64]*models.Node
	hashIndex    map[string]int64
	sources      map[string]*models.FileSource
	tags         map[int64][]string
	robotNodes   int
}

func newFakeLoaderStore() *fakeLoaderStore {
	return &fakeLoaderStore{
		nodes:     make(map[int64]*models.Node),
		hashIndex: make(map[string]int64),
		sources:   make(map[string]*models.FileSource),
		tags:      make(map[int64][]string),
	}
}

func (s *fakeLoaderStore) UpsertFileSource(ctx context.Context, path, contentHash string, mtime time.Time, frontmatter map[string]string) (*models.FileSource, error) {
	s.nextSourceID++
	fs := &models.FileSource{ID: s.nextSourceID, Path: path, ContentHash: contentHash, ModTime: mtime, Frontmatter: frontmatter, LastSyncedAt: time.Now()}
	s.sources[path] = fs
	return fs, nil
}

func (s *fakeLoaderStore) FindFileSourceByPath(ctx context.Context, path string) (*models.FileSource, error) {
	fs, ok := s.sources[path]
	if !ok {
		return nil, htmerr.NewNotFoundError("file_source", path)
	}
	return fs, nil
}

func (s *fakeLoaderStore) DeleteFileSource(ctx context.Context, path string) error {
	if _, ok := s.sources[path]; !ok {
		return htmerr.NewNotFoundError("file_source", path)
	}
	delete(s.sources, path)
	return nil
}

func (s *fakeLoaderStore) CreateChunkNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata, sourceID int64, chunkPosition int) (int64, error) {
	if existingID, ok := s.hashIndex[contentHash]; ok {
		return 0, &htmerr.DuplicateContentError{ContentHash: contentHash, ExistingNodeID: existingID}
	}
	s.nextNodeID++
	id := s.nextNodeID
	cp := chunkPosition
	s.nodes[id] = &models.Node{
		ID: id, Content: content, ContentHash: contentHash, TokenCount: tokenCount,
		Metadata: metadata, SourceID: &sourceID, ChunkPosition: &cp, CreatedAt: time.Now(),
	}
	s.hashIndex[contentHash] = id
	return id, nil
}

func (s *fakeLoaderStore) FindByID(ctx context.Context, nodeID int64) (*models.Node, error) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return nil, htmerr.NewNotFoundError("node", "")
	}
	return n, nil
}

func (s *fakeLoaderStore) UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error {
	n, ok := s.nodes[nodeID]
	if !ok {
		return htmerr.NewNotFoundError("node", "")
	}
	n.Embedding = &vec
	n.EmbeddingDimension = &origDim
	return nil
}

func (s *fakeLoaderStore) HasAnyTags(ctx context.Context, nodeID int64) (bool, error) {
	return len(s.tags[nodeID]) > 0, nil
}

func (s *fakeLoaderStore) UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error {
	s.tags[nodeID] = append(s.tags[nodeID], tagName)
	return nil
}

func (s *fakeLoaderStore) UpsertRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error) {
	s.robotNodes++
	return &models.RobotNode{RobotID: robotID, NodeID: nodeID}, nil
}

type fakeEmbedGen struct{}

func (fakeEmbedGen) Embed(text string) ([]float32, error) { return []float32{1, 2, 3}, nil }

type fakeTagExtractor struct{}

func (fakeTagExtractor) ExtractTags(text string, ontology []string) ([]string, error) {
	return []string{"topic:docs"}, nil
}

type fakeStatsSource struct{}

func (fakeStatsSource) ActiveTagStats(ctx context.Context) ([]tagindex.TagStats, error) {
	return nil, nil
}

func newTestLoader(t *testing.T, files map[string]string, chunkTokens int) (*Loader, *fakeLoaderStore) {
	t.Helper()
	st := newFakeLoaderStore()
	embeddingSvc := llmsvc.NewEmbeddingService(fakeEmbedGen{}, 2000)
	tagSvc := llmsvc.NewTagService(fakeTagExtractor{}, tagindex.NewValidator(4))
	sampler := tagindex.NewSampler(fakeStatsSource{}, 100)
	loader := NewLoader(st, &fakeFileReader{files: files}, fixedTokenCounter{}, embeddingSvc, tagSvc, sampler, jobrunner.NewInline(), chunkTokens)
	return loader, st
}

func TestLoadFile_ChunksLongContentOnParagraphBoundaries(t *testing.T) {
	longParagraph := func(label string) string {
		s := ""
		for i := 0; i < 50; i++ {
			s += label + " "
		}
		return s
	}
	content := longParagraph("alpha") + "\n\n" + longParagraph("beta") + "\n\n" + longParagraph("gamma")

	loader, st := newTestLoader(t, map[string]string{"notes.md": content}, 20)

	ids, err := loader.LoadFile(context.Background(), 1, "notes.md")
	require.NoError(t, err)
	assert.Greater(t, len(ids), 1, "content exceeding chunkTokens across paragraphs should split into multiple chunks")

	for i, id := range ids {
		n := st.nodes[id]
		require.NotNil(t, n)
		assert.Equal(t, i, *n.ChunkPosition)
	}
}

func TestLoadFile_SingleShortFileProducesOneChunk(t *testing.T) {
	loader, st := newTestLoader(t, map[string]string{"short.md": "just one short paragraph"}, 1000)

	ids, err := loader.LoadFile(context.Background(), 1, "short.md")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "just one short paragraph", st.nodes[ids[0]].Content)
}

func TestLoadFile_EnqueuesEmbeddingAndTagJobs(t *testing.T) {
	loader, st := newTestLoader(t, map[string]string{"short.md": "embed and tag me"}, 1000)

	ids, err := loader.LoadFile(context.Background(), 1, "short.md")
	require.NoError(t, err)

	n := st.nodes[ids[0]]
	assert.NotNil(t, n.Embedding, "inline job runner should have embedded synchronously")
	assert.Equal(t, []string{"topic:docs"}, st.tags[ids[0]])
}

func TestLoadFile_RejectsEmptyFile(t *testing.T) {
	loader, _ := newTestLoader(t, map[string]string{"empty.md": "   "}, 1000)
	_, err := loader.LoadFile(context.Background(), 1, "empty.md")
	assert.True(t, htmerr.IsValidationError(err))
}

func TestLoadDirectory_ContinuesPastIndividualFailures(t *testing.T) {
	loader, _ := newTestLoader(t, map[string]string{"a.md": "content a", "b.md": "content b"}, 1000)

	results, err := loader.LoadDirectory(context.Background(), 1, []string{"a.md", "missing.md", "b.md"})
	require.Error(t, err)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "a.md")
	assert.Contains(t, results, "b.md")
}

func TestUnloadFile_RemovesTrackingRowOnly(t *testing.T) {
	loader, st := newTestLoader(t, map[string]string{"short.md": "keep this node"}, 1000)

	ids, err := loader.LoadFile(context.Background(), 1, "short.md")
	require.NoError(t, err)

	require.NoError(t, loader.UnloadFile(context.Background(), "short.md"))
	_, err = st.FindFileSourceByPath(context.Background(), "short.md")
	assert.True(t, htmerr.IsNotFound(err))

	assert.NotNil(t, st.nodes[ids[0]], "unload_file must not delete the node")
}
