// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments and as the transactional engine
// behind the SQL-backed stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"estatecore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// BusinessTransaction aliases domain.BusinessTransaction.
	BusinessTransaction = domain.BusinessTransaction
	// StagedRecord aliases domain.StagedRecord.
	StagedRecord = domain.StagedRecord
	// LiveEntity aliases domain.LiveEntity.
	LiveEntity = domain.LiveEntity
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs after rule evaluation and before the new state becomes
// visible. Returning an error aborts the unit of work.
type CommitHook func(ctx context.Context, changes []Change) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook used by write-through backends.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

type memoryState struct {
	txns   map[string]BusinessTransaction
	staged map[string][]StagedRecord
	live   map[string]LiveEntity
	seq    int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Transactions map[string]BusinessTransaction `json:"transactions"`
	Staged       map[string][]StagedRecord      `json:"staged"`
	Live         map[string]LiveEntity          `json:"live"`
	Seq          int64                          `json:"seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		txns:   make(map[string]BusinessTransaction),
		staged: make(map[string][]StagedRecord),
		live:   make(map[string]LiveEntity),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{Transactions: cp.txns, Staged: cp.staged, Live: cp.live, Seq: cp.seq}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{txns: s.Transactions, staged: s.Staged, live: s.Live, seq: s.Seq}
	return state.clone()
}

// migrateSnapshot initialises nil buckets, restores insertion order of staged
// records and lifts the sequence counter above every persisted record.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Transactions == nil {
		snapshot.Transactions = map[string]BusinessTransaction{}
	}
	if snapshot.Staged == nil {
		snapshot.Staged = map[string][]StagedRecord{}
	}
	if snapshot.Live == nil {
		snapshot.Live = map[string]LiveEntity{}
	}
	for txnID, records := range snapshot.Staged {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
		for _, rec := range records {
			if rec.Seq > snapshot.Seq {
				snapshot.Seq = rec.Seq
			}
		}
		snapshot.Staged[txnID] = records
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.seq = s.seq
	for k, v := range s.txns {
		cloned.txns[k] = v.Clone()
	}
	for k, records := range s.staged {
		out := make([]StagedRecord, len(records))
		for i, rec := range records {
			out[i] = rec.Clone()
		}
		cloned.staged[k] = out
	}
	for k, v := range s.live {
		cloned.live[k] = v.Clone()
	}
	return cloned
}

// Store provides an in-memory transactional store for the staging engine.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook after construction.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindTransaction(id string) (BusinessTransaction, bool) {
	txn, ok := v.state.txns[id]
	if !ok {
		return BusinessTransaction{}, false
	}
	return txn.Clone(), true
}

func (v transactionView) ListTransactions() []BusinessTransaction {
	out := make([]BusinessTransaction, 0, len(v.state.txns))
	for _, txn := range v.state.txns {
		out = append(out, txn.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (v transactionView) ListStaged(txnID string) []StagedRecord {
	return findStaged(v.state, txnID, domain.StagedFilter{})
}

func (v transactionView) FindLive(entity domain.EntityType, id string) (LiveEntity, bool) {
	row, ok := v.state.live[domain.LiveKey(entity, id)]
	if !ok {
		return LiveEntity{}, false
	}
	return row.Clone(), true
}

func (v transactionView) ListLive(entity domain.EntityType) []LiveEntity {
	out := make([]LiveEntity, 0)
	for _, row := range v.state.live {
		if entity != "" && row.Entity != entity {
			continue
		}
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func findStaged(state *memoryState, txnID string, filter domain.StagedFilter) []StagedRecord {
	records := state.staged[txnID]
	out := make([]StagedRecord, 0, len(records))
	for _, rec := range records {
		if filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// RunInTransaction executes fn against a cloned state and swaps it in when
// fn, the rules engine and the commit hook all succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.changes); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetTransaction returns a transaction by id.
func (s *Store) GetTransaction(id string) (BusinessTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindTransaction(id)
}

// ListTransactions returns every transaction ordered by creation time.
func (s *Store) ListTransactions() []BusinessTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListTransactions()
}

// ListStaged returns the staged records of a transaction in insertion order.
func (s *Store) ListStaged(txnID string) []StagedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findStaged(&s.state, txnID, domain.StagedFilter{})
}

// GetLive returns the live row for entity/id.
func (s *Store) GetLive(entity domain.EntityType, id string) (LiveEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindLive(entity, id)
}

// ListLive returns live rows of one entity type, or all rows when entity is empty.
func (s *Store) ListLive(entity domain.EntityType) []LiveEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLive(entity)
}

func (tx *transaction) recordChange(kind domain.RecordKind, action domain.Action, key string, before, after any) error {
	change := Change{Kind: kind, Action: action, Key: key}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, key, err)
		}
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, key, err)
		}
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
	return nil
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) GetTransaction(id string) (BusinessTransaction, bool) {
	return newTransactionView(&tx.state).FindTransaction(id)
}

// PutTransaction creates or replaces a transaction record.
func (tx *transaction) PutTransaction(txn BusinessTransaction) (BusinessTransaction, error) {
	if txn.ID == "" {
		return BusinessTransaction{}, fmt.Errorf("transaction id is required")
	}
	current, exists := tx.state.txns[txn.ID]
	if exists {
		txn.CreatedAt = current.CreatedAt
	} else if txn.CreatedAt.IsZero() {
		txn.CreatedAt = tx.now
	}
	txn.UpdatedAt = tx.now
	stored := txn.Clone()
	tx.state.txns[txn.ID] = stored
	var err error
	if exists {
		err = tx.recordChange(domain.KindTransaction, domain.ActionUpdate, txn.ID, current, stored)
	} else {
		err = tx.recordChange(domain.KindTransaction, domain.ActionCreate, txn.ID, nil, stored)
	}
	if err != nil {
		return BusinessTransaction{}, err
	}
	return stored.Clone(), nil
}

// AppendStaged writes a new staged record. Sequence numbers are store
// assigned; a record that already carries one is a rewrite and is refused.
func (tx *transaction) AppendStaged(rec StagedRecord) (StagedRecord, error) {
	if rec.TxnID == "" {
		return StagedRecord{}, fmt.Errorf("staged record requires a transaction id")
	}
	if rec.Seq != 0 {
		return StagedRecord{}, fmt.Errorf("staged record %s is immutable", rec.Key())
	}
	tx.state.seq++
	rec.Seq = tx.state.seq
	rec.CreatedAt = tx.now
	stored := rec.Clone()
	tx.state.staged[rec.TxnID] = append(tx.state.staged[rec.TxnID], stored)
	if err := tx.recordChange(domain.KindStaged, domain.ActionCreate, stored.Key(), nil, stored); err != nil {
		return StagedRecord{}, err
	}
	return stored.Clone(), nil
}

// FindStaged returns matching records in insertion order.
func (tx *transaction) FindStaged(txnID string, filter domain.StagedFilter) []StagedRecord {
	return findStaged(&tx.state, txnID, filter)
}

func (tx *transaction) GetLive(entity domain.EntityType, id string) (LiveEntity, bool) {
	return newTransactionView(&tx.state).FindLive(entity, id)
}

// PutLive inserts or overwrites a live row. Rows are never removed.
func (tx *transaction) PutLive(row LiveEntity) (LiveEntity, error) {
	if row.Entity == "" || row.ID == "" {
		return LiveEntity{}, fmt.Errorf("live row requires entity and id")
	}
	key := row.Key()
	row.UpdatedAt = tx.now
	if row.Fields == nil {
		row.Fields = domain.Fields{}
	}
	stored := row.Clone()
	current, exists := tx.state.live[key]
	tx.state.live[key] = stored
	var err error
	if exists {
		err = tx.recordChange(domain.KindLive, domain.ActionUpdate, key, current, stored)
	} else {
		err = tx.recordChange(domain.KindLive, domain.ActionCreate, key, nil, stored)
	}
	if err != nil {
		return LiveEntity{}, err
	}
	return stored.Clone(), nil
}

// FindLiveByTxn returns rows of entity last written by txnID.
func (tx *transaction) FindLiveByTxn(entity domain.EntityType, txnID string) []LiveEntity {
	out := make([]LiveEntity, 0)
	for _, row := range tx.state.live {
		if row.Entity == entity && row.TxnID == txnID {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
