package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"estatecore/internal/blob"

	"pkt.systems/pslog"
)

// ArchiveDocument is the JSON document written for every completed request.
type ArchiveDocument struct {
	Operation   string              `json:"operation"`
	Transaction BusinessTransaction `json:"transaction"`
	Staged      []StagedRecord      `json:"staged"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// BlobArchive keeps an audit trail of committed and reversed transactions
// in a blob store under transactions/<service>/<txn>/<status>.json.
type BlobArchive struct {
	store  blob.Store
	logger pslog.Logger
	clock  Clock
}

// NewBlobArchive constructs an archive writing to store.
func NewBlobArchive(store blob.Store, logger pslog.Logger) *BlobArchive {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &BlobArchive{store: store, logger: logger, clock: systemClock{}}
}

// ArchiveKey returns the blob key of one archived transaction event.
func ArchiveKey(code ServiceCode, txnID string, status TxnStatus) string {
	return fmt.Sprintf("transactions/%s/%s/%s.json", code, txnID, status)
}

// Record implements AuditRecorder. Only successful requests that left the
// transaction committed or reversed are archived; write failures are logged.
func (a *BlobArchive) Record(ctx context.Context, entry AuditEntry) {
	txn := entry.Transaction
	if entry.Status != AuditStatusSuccess || txn.ID == "" || !completed(txn.Status) {
		return
	}
	doc := ArchiveDocument{
		Operation:   entry.Operation,
		Transaction: txn,
		Staged:      entry.Staged,
		RecordedAt:  a.clock.Now(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		a.logger.Warn("archive.encode.error", "txn_id", txn.ID, "error", err)
		return
	}
	key := ArchiveKey(txn.ServiceCode, txn.ID, txn.Status)
	if _, err := a.store.Head(ctx, key); err == nil {
		// Archived events are write-once; replays find them in place.
		a.logger.Debug("archive.exists", "key", key)
		return
	}
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"txn-id":       txn.ID,
			"service-code": string(txn.ServiceCode),
			"status":       string(txn.Status),
		},
	})
	if err != nil {
		a.logger.Warn("archive.put.error", "key", key, "error", err)
		return
	}
	a.logger.Debug("archive.put", "key", key, "bytes", len(data))
}

// Load reads an archived transaction event.
func (a *BlobArchive) Load(ctx context.Context, code ServiceCode, txnID string, status TxnStatus) (ArchiveDocument, error) {
	key := ArchiveKey(code, txnID, status)
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return ArchiveDocument{}, fmt.Errorf("load archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return ArchiveDocument{}, fmt.Errorf("read archive %s: %w", key, err)
	}
	var doc ArchiveDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ArchiveDocument{}, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return doc, nil
}

// Keys lists archived event keys for one service code, or all of them when code is empty.
func (a *BlobArchive) Keys(ctx context.Context, code ServiceCode) ([]string, error) {
	prefix := "transactions/"
	if code != "" {
		prefix += string(code) + "/"
	}
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys, nil
}
