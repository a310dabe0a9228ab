package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"estatecore/internal/infra/persistence/postgres/testutil"
	"estatecore/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func commitProperty(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutTransaction(domain.BusinessTransaction{ID: "T1", ServiceCode: "save.property.info", Status: domain.TxnCommitted}); err != nil {
			return err
		}
		if _, err := tx.AppendStaged(domain.StagedRecord{TxnID: "T1", Entity: domain.EntityProperty, EntityID: "P1", Section: "propertyInfo", Operation: domain.OperationDel}); err != nil {
			return err
		}
		_, err := tx.PutLive(domain.LiveEntity{Entity: domain.EntityProperty, ID: "P1", Status: domain.StatusValid, TxnID: "T1", Fields: domain.Fields{"name": "Acme"}})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestNewStoreAppliesDDL(t *testing.T) {
	_, conn := openStub(t)
	var creates int
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			creates++
		}
	}
	if creates != 3 {
		t.Fatalf("expected 3 CREATE TABLE statements, got %d: %v", creates, conn.Execs)
	}
}

func TestRunInTransactionWritesRows(t *testing.T) {
	store, conn := openStub(t)
	commitProperty(t, store)

	if rows := conn.Rows("txn_record"); len(rows) != 1 || rows[0]["status"] != "committed" {
		t.Fatalf("unexpected txn rows %v", rows)
	}
	if rows := conn.Rows("business_record"); len(rows) != 1 || rows[0]["operation"] != "DEL" {
		t.Fatalf("unexpected business rows %v", rows)
	}
	if rows := conn.Rows("instance_record"); len(rows) != 1 || rows[0]["status_cd"] != "0" {
		t.Fatalf("unexpected instance rows %v", rows)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected one commit, got %d", conn.Commits)
	}
}

func TestNewStoreLoadsExistingRows(t *testing.T) {
	store, conn := openStub(t)
	commitProperty(t, store)

	db, reused := testutil.NewStubDB()
	reused.Tables = conn.Tables
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	reloaded, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	row, ok := reloaded.GetLive(domain.EntityProperty, "P1")
	if !ok || row.Fields.String("name") != "Acme" {
		t.Fatalf("expected live row after reload, got %+v", row)
	}
	if staged := reloaded.ListStaged("T1"); len(staged) != 1 || staged[0].Seq != 1 {
		t.Fatalf("unexpected staged records %+v", staged)
	}
}

func TestPersistFailureKeepsMemoryUnchanged(t *testing.T) {
	store, conn := openStub(t)
	conn.FailTables = map[string]bool{"instance_record": true}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutLive(domain.LiveEntity{Entity: domain.EntityShop, ID: "S1", Status: domain.StatusValid})
		return err
	})
	if err == nil {
		t.Fatalf("expected persist error")
	}
	if _, ok := store.GetLive(domain.EntityShop, "S1"); ok {
		t.Fatalf("memory state must not advance when the database write fails")
	}
	if conn.Rollbacks == 0 {
		t.Fatalf("expected database rollback")
	}
}

func TestCommitFailureSurfaces(t *testing.T) {
	store, conn := openStub(t)
	conn.FailCommit = true
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.PutTransaction(domain.BusinessTransaction{ID: "T1"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if len(conn.Rows("txn_record")) != 0 {
		t.Fatalf("failed commit must not leave rows")
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailTables = map[string]bool{"txn_record": true}
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "txn_record") {
		t.Fatalf("expected load error, got %v", err)
	}
}
