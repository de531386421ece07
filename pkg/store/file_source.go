package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
)

// UpsertFileSource records or refreshes a loaded file's tracking row, keyed
// by its unique path.
func (s *Store) UpsertFileSource(ctx context.Context, path, contentHash string, mtime time.Time, frontmatter map[string]string) (*models.FileSource, error) {
	fmJSON, err := json.Marshal(frontmatter)
	if err != nil {
		return nil, err
	}

	var fs models.FileSource
	var fmRaw []byte
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO file_source (path, content_hash, mtime, frontmatter, last_synced_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime,
			frontmatter = EXCLUDED.frontmatter,
			last_synced_at = now()
		RETURNING id, path, content_hash, mtime, frontmatter, last_synced_at
	`, path, contentHash, mtime, fmJSON).Scan(&fs.ID, &fs.Path, &fs.ContentHash, &fs.ModTime, &fmRaw, &fs.LastSyncedAt)
	if err != nil {
		return nil, htmerr.NewStoreError("upsert_file_source", err)
	}
	if len(fmRaw) > 0 {
		if err := json.Unmarshal(fmRaw, &fs.Frontmatter); err != nil {
			return nil, err
		}
	}
	return &fs, nil
}

// FindFileSourceByPath returns the tracking row for a loaded file.
func (s *Store) FindFileSourceByPath(ctx context.Context, path string) (*models.FileSource, error) {
	var fs models.FileSource
	var fmRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, content_hash, mtime, frontmatter, last_synced_at FROM file_source WHERE path = $1
	`, path).Scan(&fs.ID, &fs.Path, &fs.ContentHash, &fs.ModTime, &fmRaw, &fs.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("file_source", path)
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_file_source_by_path", err)
	}
	if len(fmRaw) > 0 {
		if err := json.Unmarshal(fmRaw, &fs.Frontmatter); err != nil {
			return nil, err
		}
	}
	return &fs, nil
}

// DeleteFileSource removes the tracking row for path. Nodes previously
// chunked from it have their source_id set to NULL by the foreign key but
// are not themselves deleted — unload_file only detaches the loader bookkeeping.
func (s *Store) DeleteFileSource(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM file_source WHERE path = $1`, path)
	if err != nil {
		return htmerr.NewStoreError("delete_file_source", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return htmerr.NewStoreError("delete_file_source", err)
	}
	if n == 0 {
		return htmerr.NewNotFoundError("file_source", path)
	}
	return nil
}

// CreateChunkNode inserts a node tied to a file source chunk position, with
// the same duplicate-content semantics as CreateNode.
func (s *Store) CreateChunkNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata, sourceID int64, chunkPosition int) (int64, error) {
	id, err := s.CreateNode(ctx, content, contentHash, tokenCount, metadata)
	if err != nil {
		return id, err
	}
	_, execErr := s.db.ExecContext(ctx, `
		UPDATE node SET source_id = $1, chunk_position = $2 WHERE id = $3
	`, sourceID, chunkPosition, id)
	if execErr != nil {
		return id, htmerr.NewStoreError("create_chunk_node", execErr)
	}
	return id, nil
}
