// Package store implements the Postgres-backed persistence layer: schema
// migrations, CRUD for node/tag/node_tag/robot/robot_node/file_source, the
// hybrid search primitives, and cross-process LISTEN/NOTIFY pub/sub.
//
// Everything here is hand-written SQL over database/sql — there is no ORM.
// That mirrors the teacher's own fallback for anything its ORM cannot
// express (GIN indexes, raw migrations): the vendor-specific features this
// package leans on (pgvector ANN search, pg_trgm trigram similarity,
// tsvector full-text search, LISTEN/NOTIFY) all live outside what a
// generated query builder covers anyway.
package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection and pool settings for a Store.
type Config struct {
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store wraps a pooled Postgres connection plus a dedicated listener
// connection for pub/sub.
type Store struct {
	db       *stdsql.DB
	listener *NotifyListener
}

// DB returns the underlying connection pool, for callers that need a raw
// query not covered by Store's own methods (health checks, tests).
func (s *Store) DB() *stdsql.DB {
	return s.db
}

// Open connects to Postgres, applies pending migrations, and starts the
// notification listener. The caller must call Close when done.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := stdsql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(db, cfg.DSN); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	listener, err := NewNotifyListener(ctx, cfg.DSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: listener: %w", err)
	}

	return &Store{db: db, listener: listener}, nil
}

// NewFromDB wraps an already-open *sql.DB (used by tests against a
// testcontainers-managed database). Migrations are still applied.
func NewFromDB(ctx context.Context, db *stdsql.DB, dsn string) (*Store, error) {
	if err := runMigrations(db, dsn); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	listener, err := NewNotifyListener(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: listener: %w", err)
	}
	return &Store{db: db, listener: listener}, nil
}

// Close stops the listener and closes the connection pool.
func (s *Store) Close() error {
	if s.listener != nil {
		s.listener.Stop()
	}
	return s.db.Close()
}

func runMigrations(db *stdsql.DB, dsn string) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "htm", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Do not call m.Close(): it closes the database driver, which would
	// close the shared *sql.DB passed in via postgres.WithInstance.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}
