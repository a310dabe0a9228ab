package core

import (
	"context"
	"errors"
	"testing"

	"estatecore/pkg/domain"
)

func TestStagerRejectsUnassignedIdentities(t *testing.T) {
	f := newEngineFixture(t, nil)
	cases := []struct {
		name string
		id   string
		op   Operation
	}{
		{name: "empty id", id: "", op: OperationAdd},
		{name: "sentinel add", id: "-", op: OperationAdd},
		{name: "sentinel mod", id: "-1", op: OperationMod},
		{name: "sentinel del", id: "-", op: OperationDel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := NewStager(tx).Stage("T1", domain.EntityProperty, tc.id, "propertyInfo", tc.op, Fields{"name": "x"})
				return err
			})
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if staged := f.store.ListStaged("T1"); len(staged) != 0 {
				t.Fatalf("expected nothing staged, got %+v", staged)
			}
		})
	}
}

func TestStagerSnapshotLiveIsDeduplicated(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.dispatch(t, "T1", codeSaveProperty, `{"propertyInfo":{"propertyId":"P1","name":"Acme"}}`)

	_, err := f.store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		stager := NewStager(tx)
		first, err := stager.SnapshotLive("T2", domain.EntityProperty, "P1", "propertyInfo")
		if err != nil {
			return err
		}
		if first.Before.String("name") != "Acme" || first.BeforeStatus != StatusValid {
			t.Fatalf("unexpected snapshot %+v", first)
		}
		second, err := stager.SnapshotLive("T2", domain.EntityProperty, "P1", "propertyInfo")
		if err != nil {
			return err
		}
		if second.Seq != first.Seq {
			t.Fatalf("expected the first snapshot back, got seq %d vs %d", second.Seq, first.Seq)
		}
		if got := stager.Find("T2", StagedFilter{Operation: OperationDel}); len(got) != 1 {
			t.Fatalf("expected one DEL record, got %d", len(got))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unit: %v", err)
	}
}
