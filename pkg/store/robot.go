package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
	"github.com/codeready-toolchain/htm/pkg/models"
)

// UpsertRobot returns the id of the robot with the given name, creating the
// row if absent, and bumps last_active_at.
func (s *Store) UpsertRobot(ctx context.Context, name string) (*models.Robot, error) {
	var r models.Robot
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO robot (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET last_active_at = now()
		RETURNING id, name, created_at, last_active_at
	`, name).Scan(&r.ID, &r.Name, &r.CreatedAt, &r.LastActiveAt)
	if err != nil {
		return nil, htmerr.NewStoreError("upsert_robot", err)
	}
	return &r, nil
}

// FindRobotByName returns a robot by name.
func (s *Store) FindRobotByName(ctx context.Context, name string) (*models.Robot, error) {
	var r models.Robot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, last_active_at FROM robot WHERE name = $1
	`, name).Scan(&r.ID, &r.Name, &r.CreatedAt, &r.LastActiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, htmerr.NewNotFoundError("robot", name)
	}
	if err != nil {
		return nil, htmerr.NewStoreError("find_robot_by_name", err)
	}
	return &r, nil
}
