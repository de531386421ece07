package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
)

// UpsertRobotNode records that robotID remembered nodeID: creates the
// relationship row on first remember, or increments remember_count and
// bumps last_remembered_at on repeats, always setting working_memory=true
// (spec.md §4.5 step 4).
func (s *Store) UpsertRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error) {
	var rn models.RobotNode
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO robot_node (robot_id, node_id)
		VALUES ($1, $2)
		ON CONFLICT (robot_id, node_id) DO UPDATE SET
			remember_count = robot_node.remember_count + 1,
			last_remembered_at = now(),
			working_memory = true
		RETURNING id, robot_id, node_id, first_remembered_at, last_remembered_at, remember_count, working_memory
	`, robotID, nodeID).Scan(
		&rn.ID, &rn.RobotID, &rn.NodeID, &rn.FirstRememberedAt, &rn.LastRememberedAt,
		&rn.RememberCount, &rn.WorkingMemory,
	)
	if err != nil {
		return nil, htmerr.NewStoreError("upsert_robot_node", err)
	}
	return &rn, nil
}

// FindRobotNode returns the relationship row for a (robot, node) pair.
func (s *Store) FindRobotNode(ctx context.Context, robotID, nodeID int64) (*models.RobotNode, error) {
	var rn models.RobotNode
	err := s.db.QueryRowContext(ctx, `
		SELECT id, robot_id, node_id, first_remembered_at, last_remembered_at, remember_count, working_memory
		FROM robot_node WHERE robot_id = $1 AND node_id = $2
	`, robotID, nodeID).Scan(
		&rn.ID, &rn.RobotID, &rn.NodeID, &rn.FirstRememberedAt, &rn.LastRememberedAt,
		&rn.RememberCount, &rn.WorkingMemory,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("robot_node", "")
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_robot_node", err)
	}
	return &rn, nil
}

// SetWorkingMemoryFlag updates robot_node.working_memory to reflect the
// robot's current in-memory eviction/restore state (spec.md §9 Open Question:
// the flag mirrors in-memory state on a best-effort basis, without locking
// against concurrent eviction).
func (s *Store) SetWorkingMemoryFlag(ctx context.Context, robotID, nodeID int64, inMemory bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE robot_node SET working_memory = $1 WHERE robot_id = $2 AND node_id = $3
	`, inMemory, robotID, nodeID)
	if err != nil {
		return htmerr.NewStoreError("set_working_memory_flag", err)
	}
	return nil
}
