package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"estatecore/pkg/domain"
)

func seed(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutTransaction(domain.BusinessTransaction{ID: "T1", ServiceCode: "save.property.info", Status: domain.TxnCommitted}); err != nil {
			return err
		}
		if _, err := tx.AppendStaged(domain.StagedRecord{TxnID: "T1", Entity: domain.EntityProperty, EntityID: "P1", Section: "propertyInfo", Operation: domain.OperationDel}); err != nil {
			return err
		}
		if _, err := tx.AppendStaged(domain.StagedRecord{TxnID: "T1", Entity: domain.EntityProperty, EntityID: "P1", Section: "propertyInfo", Operation: domain.OperationAdd, Fields: domain.Fields{"name": "Acme"}}); err != nil {
			return err
		}
		_, err := tx.PutLive(domain.LiveEntity{Entity: domain.EntityProperty, ID: "P1", Status: domain.StatusValid, TxnID: "T1", Fields: domain.Fields{"name": "Acme"}})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	txn, ok := reloaded.GetTransaction("T1")
	if !ok || txn.Status != domain.TxnCommitted {
		t.Fatalf("expected committed transaction after reload, got %+v", txn)
	}
	staged := reloaded.ListStaged("T1")
	if len(staged) != 2 || staged[0].Operation != domain.OperationDel || staged[1].Seq != 2 {
		t.Fatalf("unexpected staged records %+v", staged)
	}
	row, ok := reloaded.GetLive(domain.EntityProperty, "P1")
	if !ok || row.Fields.String("name") != "Acme" || row.Status != domain.StatusValid {
		t.Fatalf("unexpected live row %+v", row)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreAppliesDDL(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, table := range []string{"txn_record", "business_record", "instance_record"} {
		var name string
		if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name= ?", table).Scan(&name); err != nil {
			t.Fatalf("lookup %s table: %v", table, err)
		}
	}
}

func TestSQLiteStoreFailedUnitWritesNothing(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutTransaction(domain.BusinessTransaction{ID: "T1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM txn_record").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows written, got %d", count)
	}
}

func TestSQLiteStoreStagedRowsAreInsertOnly(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seed(t, store)
	_, err = store.DB().Exec("INSERT INTO business_record(record_key,txn_id,seq,entity,entity_id,operation,payload) VALUES(?,?,?,?,?,?,?)",
		"T1/0000000001", "T1", 1, "property", "P1", "DEL", []byte("{}"))
	if err == nil {
		t.Fatalf("expected primary key violation on staged rewrite")
	}
}
