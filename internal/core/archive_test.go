package core

import (
	"context"
	"errors"
	"testing"

	"estatecore/internal/blob"
)

func TestBlobArchiveRecordsCompletedTransactions(t *testing.T) {
	for _, tc := range []struct {
		name  string
		store blob.Store
	}{
		{name: "memory", store: blob.NewMemory()},
		{name: "s3", store: blob.NewMockS3ForTests()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			archive := NewBlobArchive(tc.store, nil)
			svc := newTestService(t, WithAuditRecorder(archive))
			ctx := context.Background()

			if _, err := svc.Dispatch(ctx, codeSaveProperty, BusinessTransaction{ID: "T1", Payload: mustPayload(t, `{"propertyInfo":{"propertyId":"P1","name":"Acme"}}`)}); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			// A replay must not fail against the write-once archive.
			if _, err := svc.Dispatch(ctx, codeSaveProperty, BusinessTransaction{ID: "T1", Payload: mustPayload(t, `{"propertyInfo":{"propertyId":"P1","name":"Acme"}}`)}); err != nil {
				t.Fatalf("replay: %v", err)
			}
			if _, err := svc.Recover(ctx, "T1"); err != nil {
				t.Fatalf("recover: %v", err)
			}
			// Failed requests are not archived.
			_, _ = svc.Dispatch(ctx, codeUpdateProperty, BusinessTransaction{ID: "T2", Payload: Payload{}})

			keys, err := archive.Keys(ctx, codeSaveProperty)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			want := []string{ArchiveKey(codeSaveProperty, "T1", TxnCommitted), ArchiveKey(codeSaveProperty, "T1", TxnReversed)}
			if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
				t.Fatalf("unexpected archive keys %v", keys)
			}
			if all, _ := archive.Keys(ctx, ""); len(all) != 2 {
				t.Fatalf("expected only T1 events archived, got %v", all)
			}

			doc, err := archive.Load(ctx, codeSaveProperty, "T1", TxnCommitted)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if doc.Operation != "dispatch" || doc.Transaction.Status != TxnCommitted || len(doc.Staged) != 2 {
				t.Fatalf("unexpected archived document %+v", doc)
			}
			info, _, _ := doc.Transaction.Payload.Object("propertyInfo")
			if info.String("name") != "Acme" {
				t.Fatalf("expected payload archived, got %+v", doc.Transaction.Payload)
			}

			if _, err := archive.Load(ctx, codeSaveProperty, "T9", TxnCommitted); !errors.Is(err, blob.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("update.shop.info", "T7", TxnReversed); got != "transactions/update.shop.info/T7/reversed.json" {
		t.Fatalf("unexpected key %s", got)
	}
}
