package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditLine is the JSON line written by AuditJournal for one request.
type AuditLine struct {
	Operation   string      `json:"operation"`
	Status      AuditStatus `json:"status"`
	TxnID       string      `json:"txn_id,omitempty"`
	ServiceCode ServiceCode `json:"service_code,omitempty"`
	TxnStatus   TxnStatus   `json:"txn_status,omitempty"`
	Staged      int         `json:"staged"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	DurationMS  float64     `json:"duration_ms"`
}

// AuditJournal appends one JSON line per dispatch or recovery to a writer,
// failures included. Unlike BlobArchive it never stores payloads.
type AuditJournal struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewAuditJournal constructs a journal writing to w.
func NewAuditJournal(w io.Writer) *AuditJournal {
	return &AuditJournal{enc: json.NewEncoder(w)}
}

// Record implements AuditRecorder.
func (j *AuditJournal) Record(_ context.Context, entry AuditEntry) {
	line := AuditLine{
		Operation:   entry.Operation,
		Status:      entry.Status,
		TxnID:       entry.TxnID,
		ServiceCode: entry.ServiceCode,
		TxnStatus:   entry.Transaction.Status,
		Staged:      len(entry.Staged),
		Error:       entry.Error,
		StartedAt:   entry.StartedAt,
		DurationMS:  float64(entry.Duration) / float64(time.Millisecond),
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(line)
}

// Err reports the first write error; later entries are dropped after it.
func (j *AuditJournal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// MultiAudit fans every entry out to each recorder in order.
type MultiAudit []AuditRecorder

// Record implements AuditRecorder.
func (m MultiAudit) Record(ctx context.Context, entry AuditEntry) {
	for _, rec := range m {
		if rec != nil {
			rec.Record(ctx, entry)
		}
	}
}
