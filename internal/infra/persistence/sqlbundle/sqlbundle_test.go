package sqlbundle

import (
	"strings"
	"testing"

	"estatecore/pkg/domain"
)

func TestSplitStatements(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		stmts := SplitStatements(ddl)
		if len(stmts) != 5 {
			t.Fatalf("%s: expected 5 statements, got %d", name, len(stmts))
		}
		for _, stmt := range stmts {
			if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
				t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
			}
			if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
				t.Fatalf("statement missing semicolon terminator: %q", stmt)
			}
		}
	}
}

func TestPostgresBundleUsesJSONB(t *testing.T) {
	if !strings.Contains(Postgres(), "JSONB") || strings.Contains(Postgres(), "BLOB") {
		t.Fatal("expected postgres DDL to store payloads as JSONB")
	}
}

func TestInsertSQL(t *testing.T) {
	row := Row{Table: "instance_record", Columns: []string{"instance_key", "status_cd", "payload"}, Upsert: true}
	got := InsertSQL(row, DollarPlaceholder)
	want := "INSERT INTO instance_record(instance_key,status_cd,payload) VALUES($1,$2,$3) ON CONFLICT(instance_key) DO UPDATE SET status_cd=excluded.status_cd,payload=excluded.payload"
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
	row.Upsert = false
	if got := InsertSQL(row, QuestionPlaceholder); got != "INSERT INTO instance_record(instance_key,status_cd,payload) VALUES(?,?,?)" {
		t.Fatalf("unexpected insert-only statement %s", got)
	}
}

func TestRowForChange(t *testing.T) {
	after, err := domain.NewChangePayloadFromValue(domain.StagedRecord{TxnID: "T1", Seq: 4, Entity: domain.EntityShop, EntityID: "S1", Operation: domain.OperationDel})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	row, err := RowForChange(domain.Change{Kind: domain.KindStaged, Key: "T1/0000000004", After: after})
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.Table != TableBusiness || row.Upsert {
		t.Fatalf("staged rows must be insert-only into %s, got %+v", TableBusiness, row)
	}
	if row.Values[0] != "T1/0000000004" || row.Values[2] != int64(4) || row.Values[5] != "DEL" {
		t.Fatalf("unexpected values %v", row.Values)
	}

	live, _ := domain.NewChangePayloadFromValue(domain.LiveEntity{Entity: domain.EntityShop, ID: "S1", Status: domain.StatusInvalid, TxnID: "T1"})
	row, err = RowForChange(domain.Change{Kind: domain.KindLive, After: live})
	if err != nil || row.Table != TableInstances || !row.Upsert || row.Values[3] != "1" {
		t.Fatalf("unexpected live row %+v %v", row, err)
	}

	if _, err := RowForChange(domain.Change{Kind: domain.KindLive}); err == nil {
		t.Fatalf("expected missing after image error")
	}
	if _, err := RowForChange(domain.Change{Kind: "other", After: live}); err == nil {
		t.Fatalf("expected unsupported kind error")
	}
}
