// Package filesource implements the loader collaborator named in spec.md
// §6 (load_file / load_directory / unload_file): chunking a file's content
// into one-or-more remember calls tagged with source_id/chunk_position, and
// tracking the source file itself (path, hash, mtime, frontmatter, last
// synced) via pkg/store's FileSource rows.
//
// The filesystem and markdown-parsing work stays outside the core (spec.md
// §1 marks "file/markdown loaders" out of scope): Loader only accepts an
// injected config.FileReader and drives the same enrichment pipeline every
// other remembered node goes through.
package filesource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/config"
	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/jobrunner"
	"github.com/codeready-toolchain/htm/pkg/llmsvc"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

// Store is the persistence surface Loader needs. It is a superset matching
// jobrunner.EmbeddingStore and jobrunner.TagStore, so a Loader can enqueue
// the same enrichment jobs longtermmemory.Remember does, directly against
// pkg/store.Store.
type Store interface {
	UpsertFileSource(ctx context.Context, path, contentHash string, mtime time.Time, frontmatter map[string]string) (*models.FileSource, error)
	FindFileSourceByPath(ctx context.Context, path string) (*models.FileSource, error)
	DeleteFileSource(ctx context.Context, path string) error
	CreateChunkNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata, sourceID int64, chunkPosition int) (int64, error)
	FindByID(ctx context.Context, nodeID int64) (*models.Node, error)
	UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error
	HasAnyTags(ctx context.Context, nodeID int64) (bool, error)
	UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error
	UpsertRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error)
}

// Loader chunks and remembers file content on behalf of a robot.
type Loader struct {
	store        Store
	reader       config.FileReader
	tokenCounter config.TokenCounter
	embeddingSvc *llmsvc.EmbeddingService
	tagSvc       *llmsvc.TagService
	sampler      *tagindex.Sampler
	jobs         jobrunner.Runner
	chunkTokens  int
}

// NewLoader builds a Loader. chunkTokens bounds how many tokens a single
// chunk may hold before a paragraph boundary forces a new chunk.
func NewLoader(
	store Store,
	reader config.FileReader,
	tokenCounter config.TokenCounter,
	embeddingSvc *llmsvc.EmbeddingService,
	tagSvc *llmsvc.TagService,
	sampler *tagindex.Sampler,
	jobs jobrunner.Runner,
	chunkTokens int,
) *Loader {
	return &Loader{
		store:        store,
		reader:       reader,
		tokenCounter: tokenCounter,
		embeddingSvc: embeddingSvc,
		tagSvc:       tagSvc,
		sampler:      sampler,
		jobs:         jobs,
		chunkTokens:  chunkTokens,
	}
}

// LoadFile reads path via the injected FileReader, chunks its content, and
// remembers each chunk on behalf of robotID, returning the node ids in
// chunk order.
func (l *Loader) LoadFile(ctx context.Context, robotID int64, path string) ([]int64, error) {
	content, frontmatter, modTime, err := l.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, htmerr.NewValidationError("content", fmt.Sprintf("file %s is empty", path))
	}

	fs, err := l.store.UpsertFileSource(ctx, path, contentHash(content), modTime, frontmatter)
	if err != nil {
		return nil, err
	}

	chunks, err := l.chunkContent(content)
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]int64, 0, len(chunks))
	for i, chunk := range chunks {
		nodeID, err := l.rememberChunk(ctx, robotID, fs.ID, i, chunk, path)
		if err != nil {
			return nodeIDs, fmt.Errorf("remember chunk %d of %s: %w", i, path, err)
		}
		nodeIDs = append(nodeIDs, nodeID)
	}
	return nodeIDs, nil
}

// LoadDirectory loads every path in paths, continuing past individual
// failures (directory traversal itself is the caller's concern, per
// spec.md §1). It returns the node ids produced per successfully loaded
// path and a joined error for every path that failed.
func (l *Loader) LoadDirectory(ctx context.Context, robotID int64, paths []string) (map[string][]int64, error) {
	results := make(map[string][]int64, len(paths))
	var errs []error
	for _, p := range paths {
		ids, err := l.LoadFile(ctx, robotID, p)
		if err != nil {
			slog.Error("load_directory: failed to load file", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		results[p] = ids
	}
	return results, errors.Join(errs...)
}

// UnloadFile removes path's FileSource tracking row. Nodes already chunked
// from it are left in place (spec.md: unload_file only detaches the loader
// bookkeeping, not the remembered content).
func (l *Loader) UnloadFile(ctx context.Context, path string) error {
	return l.store.DeleteFileSource(ctx, path)
}

func (l *Loader) rememberChunk(ctx context.Context, robotID, sourceID int64, position int, content, path string) (int64, error) {
	tokenCount, err := l.tokenCounter.CountTokens(content)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	metadata := models.NewMetadata()
	metadata["source_path"] = path
	metadata["chunk_position"] = position

	nodeID, err := l.store.CreateChunkNode(ctx, content, contentHash(content), tokenCount, metadata, sourceID, position)
	if err != nil {
		var dup *htmerr.DuplicateContentError
		if errors.As(err, &dup) {
			nodeID = dup.ExistingNodeID
		} else {
			return 0, err
		}
	}

	if _, err := l.store.UpsertRobotNode(ctx, robotID, nodeID); err != nil {
		return 0, err
	}

	node, err := l.store.FindByID(ctx, nodeID)
	if err != nil {
		return 0, err
	}

	if node.Embedding == nil {
		if err := l.jobs.Enqueue(ctx, jobrunner.GenerateEmbeddingJob(l.store, l.embeddingSvc, nodeID)); err != nil {
			return 0, fmt.Errorf("enqueue embedding job: %w", err)
		}
	}

	hasTags, err := l.store.HasAnyTags(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	if !hasTags {
		if err := l.jobs.Enqueue(ctx, jobrunner.GenerateTagsJob(l.store, l.sampler, l.tagSvc, nodeID)); err != nil {
			return 0, fmt.Errorf("enqueue tags job: %w", err)
		}
	}

	return nodeID, nil
}

// chunkContent splits content on blank-line paragraph boundaries,
// accumulating paragraphs into a chunk until adding the next would exceed
// chunkTokens.
func (l *Loader) chunkContent(content string) ([]string, error) {
	paragraphs := strings.Split(content, "\n\n")
	var chunks []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tokens, err := l.tokenCounter.CountTokens(p)
		if err != nil {
			return nil, fmt.Errorf("count tokens: %w", err)
		}
		if currentTokens > 0 && currentTokens+tokens > l.chunkTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens += tokens
	}
	flush()

	if len(chunks) == 0 {
		chunks = append(chunks, strings.TrimSpace(content))
	}
	return chunks, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
