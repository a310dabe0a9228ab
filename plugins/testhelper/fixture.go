// Package testhelper builds in-memory services for plugin tests: predictable
// identifiers, a fixed clock and helpers that fail the test on error. Do not
// import it from production plugin code.
package testhelper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

// Now is the clock every fixture service reports.
var Now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// SequentialIDs hands out T1, T2, ... for transactions and prefix+NNN for
// entities, sharing one counter across prefixes.
type SequentialIDs struct {
	mu     sync.Mutex
	txn    int
	entity int
}

func (g *SequentialIDs) NewTransactionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txn++
	return fmt.Sprintf("T%d", g.txn)
}

func (g *SequentialIDs) NewEntityID(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entity++
	return fmt.Sprintf("%s%03d", prefix, g.entity)
}

// NewService returns an in-memory service with the default rules and every
// module installed.
func NewService(t testing.TB, modules ...core.Module) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(nil,
		core.WithIDGenerator(&SequentialIDs{}),
		core.WithClock(core.ClockFunc(func() time.Time { return Now })),
	)
	for _, m := range modules {
		if _, err := svc.InstallModule(m); err != nil {
			t.Fatalf("install module %s: %v", m.Name(), err)
		}
	}
	return svc
}

// Payload parses a JSON payload document.
func Payload(t testing.TB, raw string) core.Payload {
	t.Helper()
	payload, err := domain.ParsePayload([]byte(raw))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return payload
}

// Try dispatches raw under code and returns the error, if any.
func Try(svc *core.Service, t testing.TB, code core.ServiceCode, txnID, raw string) (core.DispatchResult, error) {
	t.Helper()
	return svc.Dispatch(context.Background(), code, core.BusinessTransaction{ID: txnID, Payload: Payload(t, raw)})
}

// Dispatch is Try that fails the test on error.
func Dispatch(svc *core.Service, t testing.TB, code core.ServiceCode, txnID, raw string) core.DispatchResult {
	t.Helper()
	res, err := Try(svc, t, code, txnID, raw)
	if err != nil {
		t.Fatalf("dispatch %s: %v", code, err)
	}
	return res
}

// Recover reverses txnID and fails the test on error.
func Recover(svc *core.Service, t testing.TB, txnID string) core.RecoveryResult {
	t.Helper()
	res, err := svc.Recover(context.Background(), txnID)
	if err != nil {
		t.Fatalf("recover %s: %v", txnID, err)
	}
	return res
}

// Live returns the live row or fails the test.
func Live(svc *core.Service, t testing.TB, entity core.EntityType, id string) core.LiveEntity {
	t.Helper()
	row, ok := svc.Live(entity, id)
	if !ok {
		t.Fatalf("expected live row %s/%s", entity, id)
	}
	return row
}
