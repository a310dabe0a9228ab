package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// TxnLifecycleRule blocks illegal business transaction status transitions.
// Committed may only move to reversed; reversed is terminal.
func TxnLifecycleRule() domain.Rule {
	return txnLifecycleRule{}
}

type txnLifecycleRule struct{}

var txnTransitions = map[TxnStatus]map[TxnStatus]struct{}{
	"":           toSet(TxnPending, TxnFailed),
	TxnPending:   toSet(TxnPending, TxnCommitted, TxnFailed),
	TxnFailed:    toSet(TxnFailed, TxnPending),
	TxnCommitted: toSet(TxnCommitted, TxnReversed),
	TxnReversed:  toSet(TxnReversed),
}

func (txnLifecycleRule) Name() string { return "txn_lifecycle" }

func (txnLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Kind != domain.KindTransaction {
			continue
		}
		after, ok := decodeChangePayload[BusinessTransaction](change.After)
		if !ok {
			continue
		}
		var from TxnStatus
		if before, ok := decodeChangePayload[BusinessTransaction](change.Before); ok {
			from = before.Status
		}
		allowed, known := txnTransitions[from]
		if _, legal := allowed[after.Status]; known && legal {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "txn_lifecycle",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("transaction %s cannot move from %q to %q", after.ID, from, after.Status),
			Kind:     domain.KindTransaction,
			Key:      change.Key,
		})
	}
	return res, nil
}

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
