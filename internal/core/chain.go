package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"

	"pkt.systems/pslog"
)

// EngineConfig carries the collaborators shared by the dispatch chain and
// the recovery controller.
type EngineConfig struct {
	Locker Locker
	IDs    IDGenerator
	Logger pslog.Logger
	Clock  Clock
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Locker == nil {
		c.Locker = noopLocker{}
	}
	if c.IDs == nil {
		c.IDs = NewXIDGenerator()
	}
	if c.Logger == nil {
		c.Logger = pslog.NoopLogger()
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	return c
}

// DispatchResult is returned to the caller of Dispatch.
type DispatchResult struct {
	TxnID        string
	Status       TxnStatus
	OutputParams map[string]string
	// Replayed is set when the transaction had already completed and the
	// call changed nothing.
	Replayed bool
}

// Chain runs the listeners registered for a service code inside one unit of work.
type Chain struct {
	store    domain.PersistentStore
	registry *Registry
	cfg      EngineConfig
}

// NewChain constructs a dispatch chain over store and registry.
func NewChain(store domain.PersistentStore, registry *Registry, cfg EngineConfig) *Chain {
	return &Chain{store: store, registry: registry, cfg: cfg.withDefaults()}
}

// Dispatch stages then materializes txn through every listener registered
// for its service code, in ascending order. Any failure rolls the whole unit
// back and records the transaction as failed; the error is returned as-is.
// Dispatching a committed or reversed transaction again is a no-op.
func (c *Chain) Dispatch(ctx context.Context, txn BusinessTransaction) (DispatchResult, error) {
	if txn.ServiceCode == "" {
		return DispatchResult{}, domain.ParameterError{Field: "serviceCode", Reason: "required field missing"}
	}
	if txn.Payload == nil {
		return DispatchResult{}, domain.ParameterError{Field: "payload", Reason: "required field missing"}
	}
	if txn.ID == "" {
		txn.ID = c.cfg.IDs.NewTransactionID()
	}
	logger := c.cfg.Logger.With("txn_id", txn.ID, "service_code", txn.ServiceCode)

	if existing, ok := c.store.GetTransaction(txn.ID); ok {
		if existing.ServiceCode != txn.ServiceCode {
			return DispatchResult{TxnID: txn.ID}, domain.ParameterError{
				Field:  "transactionId",
				Reason: fmt.Sprintf("transaction %s belongs to service %s", txn.ID, existing.ServiceCode),
			}
		}
		if completed(existing.Status) {
			logger.Info("txn.dispatch.replay", "status", existing.Status)
			return replayResult(existing), nil
		}
	}

	regs, err := c.registry.Resolve(txn.ServiceCode)
	if err != nil {
		return DispatchResult{TxnID: txn.ID}, err
	}

	release, err := c.cfg.Locker.Acquire(ctx, dispatchLockKeys(regs, txn.Payload))
	if err != nil {
		logger.Warn("txn.dispatch.lock_conflict", "error", err)
		return DispatchResult{TxnID: txn.ID, Status: TxnPending}, err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return DispatchResult{TxnID: txn.ID, Status: TxnPending}, err
	}

	working := txn.Clone()
	working.Status = TxnPending
	working.Error = ""
	working.OutputParams = nil
	working.Listeners = make([]domain.ListenerState, 0, len(regs))
	for _, reg := range regs {
		working.Listeners = append(working.Listeners, domain.ListenerState{Order: reg.Order, Name: reg.Listener.Name(), Phase: domain.PhaseNotStarted})
	}

	var replayed *BusinessTransaction
	logger.Debug("txn.dispatch.begin", "listeners", len(regs))
	_, err = c.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if cur, ok := tx.GetTransaction(working.ID); ok && completed(cur.Status) {
			replayed = &cur
			return nil
		}
		if _, err := tx.PutTransaction(working); err != nil {
			return err
		}
		lc := &Context{
			Txn:    &working,
			Tx:     tx,
			Stager: NewStager(tx),
			IDs:    c.cfg.IDs,
			Logger: logger,
			Now:    c.cfg.Clock.Now(),
		}
		for _, reg := range regs {
			if err := advance(&working, reg, domain.PhaseStaged); err != nil {
				return err
			}
			if err := reg.Listener.StageBusiness(ctx, lc); err != nil {
				return err
			}
		}
		for _, reg := range regs {
			if err := advance(&working, reg, domain.PhaseMaterialized); err != nil {
				return err
			}
			if err := reg.Listener.Materialize(ctx, lc); err != nil {
				return err
			}
		}
		working.Status = TxnCommitted
		stored, err := tx.PutTransaction(working)
		if err != nil {
			return err
		}
		working = stored
		return nil
	})
	if err != nil {
		logger.Warn("txn.dispatch.failed", "error", err)
		c.recordFailed(ctx, txn, err, logger)
		return DispatchResult{TxnID: txn.ID, Status: TxnFailed}, err
	}
	if replayed != nil {
		logger.Info("txn.dispatch.replay", "status", replayed.Status)
		return replayResult(*replayed), nil
	}
	logger.Info("txn.dispatch.committed", "outputs", len(working.OutputParams))
	return DispatchResult{
		TxnID:        working.ID,
		Status:       working.Status,
		OutputParams: copyParams(working.OutputParams),
	}, nil
}

// recordFailed stores the transaction as failed in a separate unit. Nothing
// staged by the failed unit survives, so the phase ledger is cleared.
func (c *Chain) recordFailed(ctx context.Context, txn BusinessTransaction, cause error, logger pslog.Logger) {
	failed := txn.Clone()
	failed.Status = TxnFailed
	failed.Error = cause.Error()
	failed.Listeners = nil
	failed.OutputParams = nil
	_, err := c.store.RunInTransaction(context.WithoutCancel(ctx), func(tx domain.Transaction) error {
		if cur, ok := tx.GetTransaction(failed.ID); ok && completed(cur.Status) {
			return nil
		}
		_, err := tx.PutTransaction(failed)
		return err
	})
	if err != nil {
		logger.Error("txn.dispatch.record_failed", "error", err)
	}
}

// advance moves the ledger entry of reg to next or reports a corrupted ledger.
func advance(txn *BusinessTransaction, reg Registration, next domain.ListenerPhase) error {
	st, ok := txn.Listener(reg.Order)
	if !ok {
		st = domain.ListenerState{Order: reg.Order, Name: reg.Listener.Name(), Phase: domain.PhaseNotStarted}
	}
	if !st.Phase.CanAdvance(next) {
		return domain.InternalConsistencyError{
			TxnID:  txn.ID,
			Reason: fmt.Sprintf("listener %s (order %d) cannot move from %s to %s", st.Name, st.Order, st.Phase, next),
		}
	}
	st.Phase = next
	txn.SetListener(st)
	return nil
}

func dispatchLockKeys(regs []Registration, payload Payload) []string {
	var keys []string
	for _, reg := range regs {
		if keyer, ok := reg.Listener.(LockKeyer); ok {
			keys = append(keys, keyer.LockKeys(payload)...)
		}
	}
	return keys
}

func completed(status TxnStatus) bool {
	return status == TxnCommitted || status == TxnReversed
}

func replayResult(txn BusinessTransaction) DispatchResult {
	return DispatchResult{
		TxnID:        txn.ID,
		Status:       txn.Status,
		OutputParams: copyParams(txn.OutputParams),
		Replayed:     true,
	}
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
