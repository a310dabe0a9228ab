// Package postgres provides a Postgres-backed persistent store with the same
// write-through model as the sqlite store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/internal/infra/persistence/sqlbundle"
	"estatecore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/estatecore?sslmode=disable"
)

var (
	openMu  sync.Mutex
	sqlOpen = sql.Open
)

// Store persists state to Postgres; units of work run on the embedded
// memory store.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore connects with dsn, or defaultDSN when empty.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	return NewStoreContext(context.Background(), dsn, engine)
}

// NewStoreContext is NewStore with a context bounding the initial ping,
// schema setup and snapshot load.
func NewStoreContext(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	open := sqlOpen
	openMu.Unlock()
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	dialect := sqlbundle.PostgresDialect()
	snapshot, err := sqlbundle.Bootstrap(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		Store: memory.NewStore(engine, memory.WithCommitHook(sqlbundle.WriteThrough(db, dialect))),
		db:    db,
	}
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the connection pool for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the opener for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
