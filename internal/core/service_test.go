package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"

	"pkt.systems/pslog"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

type captureTracer struct {
	ended map[string][]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s captureSpan) End(err error) {
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

type propertyTestModule struct {
	rules []Rule
}

func (propertyTestModule) Name() string    { return "property" }
func (propertyTestModule) Version() string { return "v1" }

func (m propertyTestModule) Register(registry *ModuleRegistry) error {
	for _, schema := range []SectionSchema{propertyInfoSchema, propertyAttrSchema} {
		if err := registry.RegisterSchema(schema); err != nil {
			return err
		}
	}
	registry.RegisterListener(codeSaveProperty, 1, NewIDListener("propertyInfo", "propertyId", "P", "propertyId", "propertyAttrs"))
	registry.RegisterListener(codeSaveProperty, 2, NewSectionListener(propertyInfoSchema, ModeSave))
	registry.RegisterListener(codeUpdateProperty, 2, NewSectionListener(propertyInfoSchema, ModeUpdate))
	for _, rule := range m.rules {
		registry.RegisterRule(rule)
	}
	return nil
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithIDGenerator(&sequentialIDs{}), WithClock(ClockFunc(func() time.Time { return fixedNow }))}, opts...)
	svc := NewInMemoryService(nil, opts...)
	if _, err := svc.InstallModule(propertyTestModule{}); err != nil {
		t.Fatalf("install module: %v", err)
	}
	return svc
}

func TestServiceDispatchAndRecoverAreInstrumented(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	res, err := svc.Dispatch(ctx, codeSaveProperty, BusinessTransaction{ID: "T1", Payload: mustPayload(t, `{"propertyInfo":{"propertyId":"P1","name":"Acme"}}`)})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Status != TxnCommitted {
		t.Fatalf("unexpected result %+v", res)
	}
	if !audit.has("dispatch", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.TxnID == "T1" && e.ServiceCode == codeSaveProperty && e.Transaction.Status == TxnCommitted && len(e.Staged) == 2 && e.StartedAt.Equal(fixedNow)
	}) {
		t.Fatalf("expected dispatch success audit entry, got %+v", audit.entries)
	}

	if _, err := svc.Recover(ctx, "T1"); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !audit.has("recover", AuditStatusSuccess, func(e AuditEntry) bool { return e.Transaction.Status == TxnReversed }) {
		t.Fatalf("expected recover audit entry")
	}

	if _, err := svc.Recover(ctx, "T1"); err == nil {
		t.Fatalf("expected second recovery to fail")
	}
	if !audit.has("recover", AuditStatusError, func(e AuditEntry) bool { return strings.Contains(e.Error, "not found") }) {
		t.Fatalf("expected recover error audit entry")
	}

	if len(metrics.calls) != 3 || !metrics.calls[0].success || metrics.calls[2].success {
		t.Fatalf("unexpected metrics calls %+v", metrics.calls)
	}
	if len(tracer.ended["dispatch"]) != 1 || len(tracer.ended["recover"]) != 2 || tracer.ended["recover"][1] == nil {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
}

func TestServiceDispatchRejectsMismatchedServiceCode(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Dispatch(context.Background(), codeSaveProperty, BusinessTransaction{ServiceCode: codeUpdateProperty, Payload: Payload{}})
	var perr domain.ParameterError
	if !errors.As(err, &perr) || perr.Field != "serviceCode" {
		t.Fatalf("expected ParameterError, got %v", err)
	}
}

func TestServiceReaders(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Dispatch(context.Background(), codeSaveProperty, BusinessTransaction{ID: "T1", Payload: mustPayload(t, `{"propertyInfo":{"propertyId":"-","name":"Acme"}}`)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if txn, ok := svc.Transaction("T1"); !ok || txn.Status != TxnCommitted {
		t.Fatalf("expected committed transaction, got %+v", txn)
	}
	if len(svc.Transactions()) != 1 || len(svc.Staged("T1")) != 2 {
		t.Fatalf("unexpected readers state")
	}
	if row, ok := svc.Live(domain.EntityProperty, "P001"); !ok || row.Fields.String("name") != "Acme" {
		t.Fatalf("expected live row P001, got %+v", row)
	}
	if len(svc.LiveRows(domain.EntityProperty)) != 1 {
		t.Fatalf("expected one property row")
	}
	if svc.Store() == nil || len(svc.Registry().ServiceCodes()) != 2 {
		t.Fatalf("unexpected store or registry")
	}
}

func TestServiceInstallModule(t *testing.T) {
	svc := NewInMemoryService(nil)
	meta, err := svc.InstallModule(propertyTestModule{rules: []Rule{StagedAppendOnlyRule()}})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if meta.Version != "v1" || len(meta.ServiceCodes) != 2 || meta.ServiceCodes[0] != codeSaveProperty {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if len(meta.Sections) != 2 || meta.Sections[0] != "propertyAttrs" {
		t.Fatalf("unexpected sections %+v", meta.Sections)
	}
	if _, err := svc.InstallModule(propertyTestModule{}); err == nil {
		t.Fatalf("expected duplicate module error")
	}
	if _, err := svc.InstallModule(nil); err == nil {
		t.Fatalf("expected nil module error")
	}
	if got, err := svc.Module("property"); err != nil || got.Name != "property" {
		t.Fatalf("module lookup: %+v %v", got, err)
	}
	var missing ErrModuleNotFound
	if _, err := svc.Module("shop"); !errors.As(err, &missing) || missing.Name != "shop" {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
	if mods := svc.RegisteredModules(); len(mods) != 1 {
		t.Fatalf("expected one module, got %+v", mods)
	}
	// The module re-registers a default rule; it is evaluated once.
	if rules := svc.Store().(*memory.Store).RulesEngine().Rules(); len(rules) != 3 {
		t.Fatalf("expected duplicate rule ignored, got %v", rules)
	}
}

func TestModuleRegistryRejectsBadSchemas(t *testing.T) {
	registry := NewModuleRegistry()
	if err := registry.RegisterSchema(SectionSchema{Section: "x"}); err == nil {
		t.Fatalf("expected missing entity error")
	}
	if err := registry.RegisterSchema(propertyInfoSchema); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.RegisterSchema(propertyInfoSchema); err == nil {
		t.Fatalf("expected duplicate section error")
	}
	registry.RegisterRule(nil)
	if len(registry.Rules()) != 0 {
		t.Fatalf("nil rule must be ignored")
	}
}

func TestServiceLogsStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := pslog.NewWithOptions(&buf, pslog.Options{Mode: pslog.ModeStructured, DisableTimestamp: true, NoColor: true, MinLevel: pslog.DebugLevel})
	svc := newTestService(t, WithLogger(logger))
	if _, err := svc.Dispatch(context.Background(), codeSaveProperty, BusinessTransaction{ID: "T1", Payload: mustPayload(t, `{"propertyInfo":{"propertyId":"P1","name":"Acme"}}`)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	out := buf.String()
	for _, event := range []string{"module.installed", "txn.dispatch.begin", "listener.stage", "txn.dispatch.committed"} {
		if !strings.Contains(out, event) {
			t.Fatalf("expected %s in log output:\n%s", event, out)
		}
	}
	if !strings.Contains(out, "T1") {
		t.Fatalf("expected txn id in log output:\n%s", out)
	}
}
