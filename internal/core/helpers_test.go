package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

const (
	codeSaveProperty   ServiceCode = "save.property.info"
	codeUpdateProperty ServiceCode = "update.property.info"
	codeDeleteProperty ServiceCode = "delete.property.info"
)

var (
	propertyInfoSchema = SectionSchema{
		Section:  "propertyInfo",
		Entity:   domain.EntityProperty,
		IDField:  "propertyId",
		Required: []string{"name"},
		Output:   "propertyId",
		IDPrefix: "P",
	}
	propertyAttrSchema = SectionSchema{
		Section:  "propertyAttrs",
		Entity:   domain.EntityPropertyAttr,
		IDField:  "attrId",
		Multi:    true,
		IDPrefix: "PA",
	}
)

// sequentialIDs hands out predictable identifiers.
type sequentialIDs struct {
	mu     sync.Mutex
	txn    int
	entity int
}

func (g *sequentialIDs) NewTransactionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txn++
	return fmt.Sprintf("T%d", g.txn)
}

func (g *sequentialIDs) NewEntityID(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entity++
	return fmt.Sprintf("%s%03d", prefix, g.entity)
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type engineFixture struct {
	store    *memory.Store
	registry *Registry
	chain    *Chain
	recovery *RecoveryController
}

func newEngineFixture(t *testing.T, locker Locker) *engineFixture {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithClock(func() time.Time { return fixedNow }))
	registry := NewRegistry()
	mustRegister(t, registry, codeSaveProperty, 1, NewIDListener("propertyInfo", "propertyId", "P", "propertyId", "propertyAttrs"))
	mustRegister(t, registry, codeSaveProperty, 2, NewSectionListener(propertyInfoSchema, ModeSave))
	mustRegister(t, registry, codeSaveProperty, 3, NewSectionListener(propertyAttrSchema, ModeSave, Optional()))
	mustRegister(t, registry, codeUpdateProperty, 2, NewSectionListener(propertyInfoSchema, ModeUpdate))
	mustRegister(t, registry, codeUpdateProperty, 3, NewSectionListener(propertyAttrSchema, ModeUpdate, Optional()))
	mustRegister(t, registry, codeDeleteProperty, 2, NewSectionListener(propertyInfoSchema, ModeDelete))
	cfg := EngineConfig{Locker: locker, IDs: &sequentialIDs{}, Clock: ClockFunc(func() time.Time { return fixedNow })}
	return &engineFixture{
		store:    store,
		registry: registry,
		chain:    NewChain(store, registry, cfg),
		recovery: NewRecoveryController(store, registry, cfg),
	}
}

func mustRegister(t *testing.T, registry *Registry, code ServiceCode, order int, listener Listener) {
	t.Helper()
	if err := registry.Register(code, order, listener); err != nil {
		t.Fatalf("register %s/%d: %v", code, order, err)
	}
}

func mustPayload(t *testing.T, raw string) Payload {
	t.Helper()
	payload, err := domain.ParsePayload([]byte(raw))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	return payload
}

func (f *engineFixture) dispatch(t *testing.T, id string, code ServiceCode, raw string) DispatchResult {
	t.Helper()
	res, err := f.chain.Dispatch(context.Background(), BusinessTransaction{ID: id, ServiceCode: code, Payload: mustPayload(t, raw)})
	if err != nil {
		t.Fatalf("dispatch %s: %v", code, err)
	}
	return res
}

func (f *engineFixture) live(t *testing.T, entity EntityType, id string) LiveEntity {
	t.Helper()
	row, ok := f.store.GetLive(entity, id)
	if !ok {
		t.Fatalf("expected live row %s/%s", entity, id)
	}
	return row
}

// recordingListener appends its name and phase to a shared journal.
type recordingListener struct {
	name    string
	journal *[]string
	fail    string
}

func (l *recordingListener) Name() string { return l.name }

func (l *recordingListener) note(phase string) error {
	*l.journal = append(*l.journal, l.name+":"+phase)
	if l.fail == phase {
		return fmt.Errorf("%s failed during %s", l.name, phase)
	}
	return nil
}

func (l *recordingListener) StageBusiness(context.Context, *Context) error { return l.note("stage") }

func (l *recordingListener) Materialize(context.Context, *Context) error {
	return l.note("materialize")
}

func (l *recordingListener) Reverse(context.Context, *Context) error { return l.note("reverse") }
