package sqlbundle

import (
	"context"
	"database/sql"
	"fmt"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

// Dialect is what differs between the SQL backends.
type Dialect struct {
	Name        string
	DDL         string
	Placeholder Placeholder
}

// SQLiteDialect uses ? placeholders.
func SQLiteDialect() Dialect {
	return Dialect{Name: "sqlite", DDL: sqliteDDL, Placeholder: QuestionPlaceholder}
}

// PostgresDialect uses $n placeholders.
func PostgresDialect() Dialect {
	return Dialect{Name: "postgres", DDL: postgresDDL, Placeholder: DollarPlaceholder}
}

// Bootstrap applies the dialect schema and reads back every stored row.
func Bootstrap(ctx context.Context, db *sql.DB, d Dialect) (memory.Snapshot, error) {
	if err := ApplyDDL(ctx, db, d.DDL); err != nil {
		return memory.Snapshot{}, fmt.Errorf("%s schema: %w", d.Name, err)
	}
	return LoadSnapshot(ctx, db)
}

// WriteThrough returns a commit hook that writes each committed change set
// to db inside one SQL transaction. A failed write rolls the SQL transaction
// back and the memory store then discards the unit.
func WriteThrough(db *sql.DB, d Dialect) memory.CommitHook {
	return func(ctx context.Context, changes []domain.Change) (err error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%s begin: %w", d.Name, err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()
		if err := WriteChanges(ctx, tx, d.Placeholder, changes); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%s commit: %w", d.Name, err)
		}
		return nil
	}
}
