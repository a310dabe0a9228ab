package core

import (
	"context"

	"estatecore/pkg/domain"
)

// RecoveryResult is returned to the caller of Recover.
type RecoveryResult struct {
	TxnID  string
	Status TxnStatus
}

// RecoveryController undoes committed transactions using their staged
// compensating records.
type RecoveryController struct {
	store    domain.PersistentStore
	registry *Registry
	cfg      EngineConfig
}

// NewRecoveryController constructs a recovery controller over store and registry.
func NewRecoveryController(store domain.PersistentStore, registry *Registry, cfg EngineConfig) *RecoveryController {
	return &RecoveryController{store: store, registry: registry, cfg: cfg.withDefaults()}
}

// Recover reverses txnID through the listeners registered for its service
// code. Listeners run in the same ascending order used at commit; each one
// only restores the entities of its own section. Any error aborts the whole
// unit and the transaction stays committed.
func (r *RecoveryController) Recover(ctx context.Context, txnID string) (RecoveryResult, error) {
	txn, ok := r.store.GetTransaction(txnID)
	if !ok {
		return RecoveryResult{TxnID: txnID}, domain.NotFoundError{Kind: domain.KindTransaction, ID: txnID}
	}
	if txn.Status != TxnCommitted {
		return RecoveryResult{TxnID: txnID, Status: txn.Status}, domain.NotFoundError{Kind: domain.KindTransaction, ID: txnID, Status: txn.Status}
	}
	logger := r.cfg.Logger.With("txn_id", txnID, "service_code", txn.ServiceCode)

	regs, err := r.registry.Resolve(txn.ServiceCode)
	if err != nil {
		return RecoveryResult{TxnID: txnID, Status: txn.Status}, err
	}

	release, err := r.cfg.Locker.Acquire(ctx, recoveryLockKeys(r.store.ListStaged(txnID)))
	if err != nil {
		logger.Warn("txn.recover.lock_conflict", "error", err)
		return RecoveryResult{TxnID: txnID, Status: txn.Status}, err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return RecoveryResult{TxnID: txnID, Status: txn.Status}, err
	}

	var final BusinessTransaction
	logger.Debug("txn.recover.begin", "listeners", len(regs))
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		working, ok := tx.GetTransaction(txnID)
		if !ok {
			return domain.NotFoundError{Kind: domain.KindTransaction, ID: txnID}
		}
		if working.Status != TxnCommitted {
			return domain.NotFoundError{Kind: domain.KindTransaction, ID: txnID, Status: working.Status}
		}
		lc := &Context{
			Txn:    &working,
			Tx:     tx,
			Stager: NewStager(tx),
			IDs:    r.cfg.IDs,
			Logger: logger,
			Now:    r.cfg.Clock.Now(),
		}
		for _, reg := range regs {
			if err := advance(&working, reg, domain.PhaseReversed); err != nil {
				return err
			}
			if err := reg.Listener.Reverse(ctx, lc); err != nil {
				return err
			}
		}
		working.Status = TxnReversed
		stored, err := tx.PutTransaction(working)
		if err != nil {
			return err
		}
		final = stored
		return nil
	})
	if err != nil {
		logger.Error("txn.recover.failed", "error", err)
		status := TxnCommitted
		if current, ok := r.store.GetTransaction(txnID); ok {
			status = current.Status
		}
		return RecoveryResult{TxnID: txnID, Status: status}, err
	}
	logger.Info("txn.recover.reversed")
	return RecoveryResult{TxnID: final.ID, Status: final.Status}, nil
}

func recoveryLockKeys(staged []StagedRecord) []string {
	keys := make([]string, 0, len(staged))
	for _, rec := range staged {
		keys = append(keys, domain.LiveKey(rec.Entity, rec.EntityID))
	}
	return keys
}
