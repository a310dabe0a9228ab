package domain

import "context"

// StagedFilter narrows FindStaged. Zero-valued fields match everything.
type StagedFilter struct {
	Section   string
	Operation Operation
	Entity    EntityType
	EntityID  string
}

// Match reports whether rec satisfies the filter.
func (f StagedFilter) Match(rec StagedRecord) bool {
	if f.Section != "" && rec.Section != f.Section {
		return false
	}
	if f.Operation != "" && rec.Operation != f.Operation {
		return false
	}
	if f.Entity != "" && rec.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && rec.EntityID != f.EntityID {
		return false
	}
	return true
}

// Transaction exposes the operations a persistence implementation must
// support within one atomic unit of work.
type Transaction interface {
	Snapshot() TransactionView
	GetTransaction(id string) (BusinessTransaction, bool)
	PutTransaction(txn BusinessTransaction) (BusinessTransaction, error)
	AppendStaged(rec StagedRecord) (StagedRecord, error)
	FindStaged(txnID string, filter StagedFilter) []StagedRecord
	GetLive(entity EntityType, id string) (LiveEntity, bool)
	PutLive(row LiveEntity) (LiveEntity, error)
	FindLiveByTxn(entity EntityType, txnID string) []LiveEntity
}

// TransactionView provides read-only access to snapshot data for rules and readers.
type TransactionView interface {
	FindTransaction(id string) (BusinessTransaction, bool)
	ListTransactions() []BusinessTransaction
	ListStaged(txnID string) []StagedRecord
	FindLive(entity EntityType, id string) (LiveEntity, bool)
	ListLive(entity EntityType) []LiveEntity
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetTransaction(id string) (BusinessTransaction, bool)
	ListTransactions() []BusinessTransaction
	ListStaged(txnID string) []StagedRecord
	GetLive(entity EntityType, id string) (LiveEntity, bool)
	ListLive(entity EntityType) []LiveEntity
}
