// Package sqlbundle holds the embedded DDL shared by the SQL-backed stores and
// the codec that turns committed changes into table rows and back.
package sqlbundle

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed" // DDL bundles
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

//go:embed sqlite.sql
var sqliteDDL string

//go:embed postgres.sql
var postgresDDL string

// Table names.
const (
	TableTransactions = "txn_record"
	TableBusiness     = "business_record"
	TableInstances    = "instance_record"
)

// SQLite returns the SQLite DDL.
func SQLite() string {
	return sqliteDDL
}

// Postgres returns the Postgres DDL.
func Postgres() string {
	return postgresDDL
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ApplyDDL executes every statement of ddl in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Placeholder renders the n-th (1-based) bind parameter for a dialect.
type Placeholder func(n int) string

// QuestionPlaceholder is the SQLite style.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder is the Postgres style.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Row is one record ready to be written. The first column is the primary key.
type Row struct {
	Table   string
	Columns []string
	Values  []any
	// Upsert replaces an existing row; insert-only tables leave it false so a
	// rewrite fails on the primary key.
	Upsert bool
}

// InsertSQL renders the statement for row.
func InsertSQL(row Row, ph Placeholder) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(row.Table)
	b.WriteString("(")
	b.WriteString(strings.Join(row.Columns, ","))
	b.WriteString(") VALUES(")
	for i := range row.Columns {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(ph(i + 1))
	}
	b.WriteString(")")
	if row.Upsert && len(row.Columns) > 1 {
		b.WriteString(" ON CONFLICT(")
		b.WriteString(row.Columns[0])
		b.WriteString(") DO UPDATE SET ")
		for i, col := range row.Columns[1:] {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(col)
			b.WriteString("=excluded.")
			b.WriteString(col)
		}
	}
	return b.String()
}

// RowForChange maps a committed change onto its table row.
func RowForChange(change domain.Change) (Row, error) {
	raw := change.After.Raw()
	if raw == nil {
		return Row{}, fmt.Errorf("change %s %s has no after image", change.Kind, change.Key)
	}
	switch change.Kind {
	case domain.KindTransaction:
		var txn domain.BusinessTransaction
		if err := json.Unmarshal(raw, &txn); err != nil {
			return Row{}, fmt.Errorf("decode transaction %s: %w", change.Key, err)
		}
		return Row{
			Table:   TableTransactions,
			Columns: []string{"txn_id", "service_code", "status", "payload"},
			Values:  []any{txn.ID, string(txn.ServiceCode), string(txn.Status), []byte(raw)},
			Upsert:  true,
		}, nil
	case domain.KindStaged:
		var rec domain.StagedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return Row{}, fmt.Errorf("decode staged %s: %w", change.Key, err)
		}
		return Row{
			Table:   TableBusiness,
			Columns: []string{"record_key", "txn_id", "seq", "entity", "entity_id", "operation", "payload"},
			Values:  []any{rec.Key(), rec.TxnID, rec.Seq, string(rec.Entity), rec.EntityID, string(rec.Operation), []byte(raw)},
		}, nil
	case domain.KindLive:
		var row domain.LiveEntity
		if err := json.Unmarshal(raw, &row); err != nil {
			return Row{}, fmt.Errorf("decode live %s: %w", change.Key, err)
		}
		return Row{
			Table:   TableInstances,
			Columns: []string{"instance_key", "entity", "entity_id", "status_cd", "txn_id", "payload"},
			Values:  []any{row.Key(), string(row.Entity), row.ID, string(row.Status), row.TxnID, []byte(raw)},
			Upsert:  true,
		}, nil
	default:
		return Row{}, fmt.Errorf("unsupported change kind %q", change.Kind)
	}
}

// WriteChanges writes every change through db using the dialect placeholder.
func WriteChanges(ctx context.Context, db Execer, ph Placeholder, changes []domain.Change) error {
	for _, change := range changes {
		row, err := RowForChange(change)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, InsertSQL(row, ph), row.Values...); err != nil {
			return fmt.Errorf("write %s %s: %w", row.Table, change.Key, err)
		}
	}
	return nil
}

// LoadSnapshot reads all three tables into a memory snapshot.
func LoadSnapshot(ctx context.Context, db Queryer) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Transactions: map[string]domain.BusinessTransaction{},
		Staged:       map[string][]domain.StagedRecord{},
		Live:         map[string]domain.LiveEntity{},
	}
	err := scanPayloads(ctx, db, TableTransactions, func(raw []byte) error {
		var txn domain.BusinessTransaction
		if err := json.Unmarshal(raw, &txn); err != nil {
			return err
		}
		snapshot.Transactions[txn.ID] = txn
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}
	err = scanPayloads(ctx, db, TableBusiness, func(raw []byte) error {
		var rec domain.StagedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		snapshot.Staged[rec.TxnID] = append(snapshot.Staged[rec.TxnID], rec)
		if rec.Seq > snapshot.Seq {
			snapshot.Seq = rec.Seq
		}
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}
	err = scanPayloads(ctx, db, TableInstances, func(raw []byte) error {
		var row domain.LiveEntity
		if err := json.Unmarshal(raw, &row); err != nil {
			return err
		}
		snapshot.Live[row.Key()] = row
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func scanPayloads(ctx context.Context, db Queryer, table string, fn func([]byte) error) error {
	rows, err := db.QueryContext(ctx, "SELECT payload FROM "+table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := fn(payload); err != nil {
			return fmt.Errorf("decode %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}
