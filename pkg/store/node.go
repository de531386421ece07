package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
)

const uniqueViolation = "23505"

// CreateNode inserts a new node. If an active node already carries the
// same content hash, it returns *htmerr.DuplicateContentError wrapping the
// existing node's id so the caller can reuse it (spec.md §4.1).
func (s *Store) CreateNode(ctx context.Context, content, contentHash string, tokenCount int, metadata models.Metadata) (int64, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("store: marshal metadata: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO node (content, content_hash, token_count, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, content, contentHash, tokenCount, metaJSON).Scan(&id)
	if err == nil {
		return id, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		existing, findErr := s.FindByHash(ctx, contentHash)
		if findErr != nil {
			return 0, htmerr.NewStoreError("create_node", findErr).(error)
		}
		return 0, &htmerr.DuplicateContentError{ContentHash: contentHash, ExistingNodeID: existing.ID}
	}
	return 0, htmerr.NewStoreError("create_node", err).(error)
}

// UpdateEmbedding writes back a padded embedding and its original
// dimension for a node. No-op target check (skip if already set) is the
// caller's responsibility (JobRunner's GenerateEmbedding job).
func (s *Store) UpdateEmbedding(ctx context.Context, nodeID int64, vec pgvector.Vector, origDim int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE node SET embedding = $1, embedding_dimension = $2, updated_at = now()
		WHERE id = $3
	`, vec, origDim, nodeID)
	if err != nil {
		return htmerr.NewStoreError("update_embedding", err)
	}
	return nil
}

// SoftDelete sets deleted_at on a node.
func (s *Store) SoftDelete(ctx context.Context, nodeID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE node SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, nodeID)
	if err != nil {
		return htmerr.NewStoreError("soft_delete", err)
	}
	return requireRowAffected(res, "node", nodeID)
}

// Restore clears deleted_at. Returns *htmerr.DuplicateContentError if
// another active node now holds the same content hash.
func (s *Store) Restore(ctx context.Context, nodeID int64) error {
	node, err := s.findByID(ctx, nodeID, true)
	if err != nil {
		return err
	}
	if node.Active() {
		return nil
	}

	existing, err := s.FindByHash(ctx, node.ContentHash)
	if err == nil && existing.ID != nodeID {
		return &htmerr.DuplicateContentError{ContentHash: node.ContentHash, ExistingNodeID: existing.ID}
	}
	if err != nil && !htmerr.IsNotFound(err) {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE node SET deleted_at = NULL WHERE id = $1`, nodeID)
	if err != nil {
		return htmerr.NewStoreError("restore", err)
	}
	return nil
}

// PurgeNode hard-deletes a node and cascades to its node_tag/robot_node
// rows. Used only when the caller explicitly confirms permanent deletion
// (spec.md §6 forget(node_id, confirm)).
func (s *Store) PurgeNode(ctx context.Context, nodeID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM node WHERE id = $1`, nodeID)
	if err != nil {
		return htmerr.NewStoreError("purge_node", err)
	}
	return requireRowAffected(res, "node", nodeID)
}

// FindByID returns an active node by id.
func (s *Store) FindByID(ctx context.Context, nodeID int64) (*models.Node, error) {
	return s.findByID(ctx, nodeID, false)
}

func (s *Store) findByID(ctx context.Context, nodeID int64, includeDeleted bool) (*models.Node, error) {
	query := `
		SELECT id, content, content_hash, token_count, embedding, embedding_dimension,
		       source_id, chunk_position, metadata, created_at, updated_at, last_accessed,
		       access_count, deleted_at
		FROM node WHERE id = $1`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	row := s.db.QueryRowContext(ctx, query, nodeID)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("node", fmt.Sprintf("%d", nodeID))
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_by_id", err)
	}
	return node, nil
}

// FindByHash returns the active node with the given content hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (*models.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, content_hash, token_count, embedding, embedding_dimension,
		       source_id, chunk_position, metadata, created_at, updated_at, last_accessed,
		       access_count, deleted_at
		FROM node WHERE content_hash = $1 AND deleted_at IS NULL
	`, hash)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("node", hash)
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_by_hash", err)
	}
	return node, nil
}

// TouchAccess increments access_count and sets last_accessed for the given
// node ids. Callers batch this across a search result page; it is
// eventually consistent by design (spec.md §4.5).
func (s *Store) TouchAccess(ctx context.Context, nodeIDs []int64) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE node SET access_count = access_count + 1, last_accessed = now()
		WHERE id = ANY($1)
	`, int64SliceToArray(nodeIDs))
	if err != nil {
		return htmerr.NewStoreError("touch_access", err)
	}
	return nil
}

func requireRowAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return htmerr.NewStoreError("rows_affected", err)
	}
	if n == 0 {
		return htmerr.NewNotFoundError(kind, fmt.Sprintf("%d", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		n           models.Node
		embedding   []byte
		metaJSON    []byte
		embDim      sql.NullInt64
		sourceID    sql.NullInt64
		chunkPos    sql.NullInt64
		lastAcc     sql.NullTime
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&n.ID, &n.Content, &n.ContentHash, &n.TokenCount, &embedding, &embDim,
		&sourceID, &chunkPos, &metaJSON, &n.CreatedAt, &n.UpdatedAt, &lastAcc,
		&n.AccessCount, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(embedding) > 0 {
		vec, perr := pgvector.ParseVector(string(embedding))
		if perr != nil {
			return nil, fmt.Errorf("parse embedding: %w", perr)
		}
		n.Embedding = &vec
	}
	if embDim.Valid {
		d := int(embDim.Int64)
		n.EmbeddingDimension = &d
	}
	if sourceID.Valid {
		n.SourceID = &sourceID.Int64
	}
	if chunkPos.Valid {
		p := int(chunkPos.Int64)
		n.ChunkPosition = &p
	}
	if lastAcc.Valid {
		n.LastAccessed = &lastAcc.Time
	}
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}

	n.Metadata = models.NewMetadata()
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &n, nil
}

func int64SliceToArray(ids []int64) string {
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", id)
	}
	return s + "}"
}
