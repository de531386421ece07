package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
	"github.com/codeready-toolchain/htm/pkg/tagindex"
)

// UpsertTag returns the id of the active tag with the given name, creating
// it if absent. Concurrent callers racing to create the same tag are
// resolved by the partial unique index on tag(name) WHERE deleted_at IS NULL.
func (s *Store) UpsertTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tag (name) VALUES ($1)
		ON CONFLICT (name) WHERE deleted_at IS NULL DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return 0, htmerr.NewStoreError("upsert_tag", err)
	}
	return id, nil
}

// FindTagByName returns the active tag with the given name.
func (s *Store) FindTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, deleted_at FROM tag WHERE name = $1 AND deleted_at IS NULL
	`, name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("tag", name)
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_tag_by_name", err)
	}
	return &t, nil
}

// UpsertNodeTag associates a node with a tag, creating the tag if absent. It
// is a no-op (not an error) if the association already exists and is active,
// so it is safe to call for both manual tagging and asynchronous extraction.
func (s *Store) UpsertNodeTag(ctx context.Context, nodeID int64, tagName string) error {
	tagID, err := s.UpsertTag(ctx, tagName)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO node_tag (node_id, tag_id) VALUES ($1, $2)
		ON CONFLICT (node_id, tag_id) WHERE deleted_at IS NULL DO NOTHING
	`, nodeID, tagID)
	if err != nil {
		return htmerr.NewStoreError("upsert_node_tag", err)
	}
	return nil
}

// NodeTagNames returns the active tag names attached to a node.
func (s *Store) NodeTagNames(ctx context.Context, nodeID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM node_tag nt
		JOIN tag t ON t.id = nt.tag_id
		WHERE nt.node_id = $1 AND nt.deleted_at IS NULL AND t.deleted_at IS NULL
		ORDER BY t.name
	`, nodeID)
	if err != nil {
		return nil, htmerr.NewStoreError("node_tag_names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, htmerr.NewStoreError("node_tag_names", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasAnyTags reports whether a node already has at least one active tag
// association, used by the GenerateTags job to decide whether to skip
// extraction entirely (spec.md §4.3).
func (s *Store) HasAnyTags(ctx context.Context, nodeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM node_tag WHERE node_id = $1 AND deleted_at IS NULL)
	`, nodeID).Scan(&exists)
	if err != nil {
		return false, htmerr.NewStoreError("has_any_tags", err)
	}
	return exists, nil
}

// ActiveTagStats implements tagindex.StatsSource: usage count and last-used
// timestamp (from node_tag.created_at) per active tag, feeding ontology
// sampling.
func (s *Store) ActiveTagStats(ctx context.Context) ([]tagindex.TagStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(nt.id), COALESCE(EXTRACT(EPOCH FROM MAX(nt.created_at)), 0)
		FROM tag t
		JOIN node_tag nt ON nt.tag_id = t.id AND nt.deleted_at IS NULL
		WHERE t.deleted_at IS NULL
		GROUP BY t.name
	`)
	if err != nil {
		return nil, htmerr.NewStoreError("active_tag_stats", err)
	}
	defer rows.Close()

	var stats []tagindex.TagStats
	for rows.Next() {
		var st tagindex.TagStats
		var lastUsed float64
		if err := rows.Scan(&st.Name, &st.UsageCount, &lastUsed); err != nil {
			return nil, htmerr.NewStoreError("active_tag_stats", err)
		}
		st.LastUsedAt = int64(lastUsed)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ReapOrphanTags implements tagindex.OrphanReaper: soft-deletes active tags
// with no active node_tag reference.
func (s *Store) ReapOrphanTags(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tag SET deleted_at = now()
		WHERE deleted_at IS NULL
		  AND id NOT IN (SELECT tag_id FROM node_tag WHERE deleted_at IS NULL)
	`)
	if err != nil {
		return 0, htmerr.NewStoreError("reap_orphan_tags", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, htmerr.NewStoreError("reap_orphan_tags", err)
	}
	return int(n), nil
}

// SearchTags returns active tags ordered by trigram similarity to query,
// descending, filtered to a minimum similarity threshold.
func (s *Store) SearchTags(ctx context.Context, query string, minSimilarity float64, limit int) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, deleted_at, similarity(name, $1) AS sim
		FROM tag
		WHERE deleted_at IS NULL AND similarity(name, $1) >= $2
		ORDER BY sim DESC, name ASC
		LIMIT $3
	`, query, minSimilarity, limit)
	if err != nil {
		return nil, htmerr.NewStoreError("search_tags", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var t models.Tag
		var sim float64
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.DeletedAt, &sim); err != nil {
			return nil, htmerr.NewStoreError("search_tags", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
