// Package sqlite provides a SQLite-backed persistent store. Units of work run
// against the in-memory engine and every committed change is written through
// to row-level tables before the new state becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/internal/infra/persistence/sqlbundle"
	"estatecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "estatecore.db"

// Store persists transactions, staged records and live rows to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema and
// hydrates the in-memory engine from existing rows.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps write-through ordered.
	db.SetMaxOpenConns(1)
	dialect := sqlbundle.SQLiteDialect()
	snapshot, err := sqlbundle.Bootstrap(context.Background(), db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		Store: memory.NewStore(engine, memory.WithCommitHook(sqlbundle.WriteThrough(db, dialect))),
		db:    db,
		path:  path,
	}
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
