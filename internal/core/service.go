package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"

	"pkt.systems/pslog"
)

// Service is the entry point used by collaborators: it owns the listener
// registry, the dispatch chain and the recovery controller, and instruments
// every request with logs, metrics, traces and audit entries.
type Service struct {
	store    PersistentStore
	registry *Registry
	modules  map[string]ModuleMetadata

	logger  pslog.Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
	locker  Locker
	ids     IDGenerator

	chain    *Chain
	recovery *RecoveryController
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger pslog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for audit timestamps and listener contexts.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink, e.g. a transaction archive.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithLocker sets the per-entity locker. Defaults to a waiting LocalLocker.
func WithLocker(locker Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithIDGenerator overrides transaction and entity id generation.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithRegistry supplies a prebuilt listener registry.
func WithRegistry(registry *Registry) Option {
	return func(s *Service) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: NewRegistry(),
		modules:  make(map[string]ModuleMetadata),
		logger:   pslog.NoopLogger(),
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		audit:    noopAudit{},
		clock:    systemClock{},
		locker:   NewLocalLocker(LockWait),
		ids:      NewXIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cfg := EngineConfig{Locker: s.locker, IDs: s.ids, Logger: s.logger, Clock: s.clock}
	s.chain = NewChain(store, s.registry, cfg)
	s.recovery = NewRecoveryController(store, s.registry, cfg)
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. A nil engine selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Registry returns the listener registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Dispatch runs txn through the chain registered for code.
func (s *Service) Dispatch(ctx context.Context, code ServiceCode, txn BusinessTransaction) (DispatchResult, error) {
	if txn.ServiceCode == "" {
		txn.ServiceCode = code
	}
	if txn.ServiceCode != code {
		return DispatchResult{TxnID: txn.ID}, domain.ParameterError{
			Field:  "serviceCode",
			Reason: fmt.Sprintf("payload carries %s, request names %s", txn.ServiceCode, code),
		}
	}
	var res DispatchResult
	err := s.instrument(ctx, "dispatch", code, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.chain.Dispatch(ctx, txn)
		return res.TxnID, err
	})
	return res, err
}

// Recover reverses the committed transaction txnID.
func (s *Service) Recover(ctx context.Context, txnID string) (RecoveryResult, error) {
	var code ServiceCode
	if txn, ok := s.store.GetTransaction(txnID); ok {
		code = txn.ServiceCode
	}
	var res RecoveryResult
	err := s.instrument(ctx, "recover", code, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.recovery.Recover(ctx, txnID)
		return txnID, err
	})
	return res, err
}

// Transaction returns the stored business transaction.
func (s *Service) Transaction(id string) (BusinessTransaction, bool) {
	return s.store.GetTransaction(id)
}

// Transactions lists every stored business transaction.
func (s *Service) Transactions() []BusinessTransaction {
	return s.store.ListTransactions()
}

// Live returns the live row of entity id.
func (s *Service) Live(entity EntityType, id string) (LiveEntity, bool) {
	return s.store.GetLive(entity, id)
}

// LiveRows lists the live rows of entity, or every row when entity is empty.
func (s *Service) LiveRows(entity EntityType) []LiveEntity {
	return s.store.ListLive(entity)
}

// Staged returns the staged records of txnID in insertion order.
func (s *Service) Staged(txnID string) []StagedRecord {
	return s.store.ListStaged(txnID)
}

func (s *Service) instrument(ctx context.Context, op string, code ServiceCode, fn func(context.Context) (string, error)) error {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	begin := time.Now()
	txnID, err := fn(ctx)
	duration := time.Since(begin)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation:   op,
		Status:      AuditStatusSuccess,
		TxnID:       txnID,
		ServiceCode: code,
		StartedAt:   started,
		Duration:    duration,
	}
	if txn, ok := s.store.GetTransaction(txnID); ok {
		entry.Transaction = txn
		entry.Staged = s.store.ListStaged(txnID)
		if entry.ServiceCode == "" {
			entry.ServiceCode = txn.ServiceCode
		}
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Debug("service.request.error", "operation", op, "txn_id", txnID, "error", err)
	}
	s.audit.Record(ctx, entry)
	return err
}

// ErrModuleNotFound is returned when a module lookup fails.
type ErrModuleNotFound struct {
	Name string
}

func (e ErrModuleNotFound) Error() string {
	return fmt.Sprintf("module %s not found", e.Name)
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

// InstallModule registers a module, wiring its listeners into the registry
// and its rules into the active engine.
func (s *Service) InstallModule(module Module) (ModuleMetadata, error) {
	if module == nil {
		return ModuleMetadata{}, fmt.Errorf("module cannot be nil")
	}
	if _, ok := s.modules[module.Name()]; ok {
		return ModuleMetadata{}, fmt.Errorf("module %s already registered", module.Name())
	}

	registry := NewModuleRegistry()
	if err := module.Register(registry); err != nil {
		return ModuleMetadata{}, err
	}

	rules := registry.Rules()
	if len(rules) > 0 {
		provider, ok := s.store.(rulesEngineProvider)
		if !ok || provider.RulesEngine() == nil {
			return ModuleMetadata{}, fmt.Errorf("module %s contributes rules but the store exposes no rules engine", module.Name())
		}
		for _, rule := range rules {
			provider.RulesEngine().Register(rule)
		}
	}

	codes := make(map[ServiceCode]struct{})
	for _, reg := range registry.Registrations() {
		if err := s.registry.Register(reg.ServiceCode, reg.Order, reg.Listener); err != nil {
			return ModuleMetadata{}, fmt.Errorf("install module %s: %w", module.Name(), err)
		}
		codes[reg.ServiceCode] = struct{}{}
	}

	meta := ModuleMetadata{Name: module.Name(), Version: module.Version()}
	for code := range codes {
		meta.ServiceCodes = append(meta.ServiceCodes, code)
	}
	sort.Slice(meta.ServiceCodes, func(i, j int) bool { return meta.ServiceCodes[i] < meta.ServiceCodes[j] })
	for _, schema := range registry.Schemas() {
		meta.Sections = append(meta.Sections, schema.Section)
	}
	s.modules[module.Name()] = meta
	s.logger.Info("module.installed", "module", meta.Name, "version", meta.Version, "service_codes", len(meta.ServiceCodes))
	return meta, nil
}

// Module returns metadata for an installed module.
func (s *Service) Module(name string) (ModuleMetadata, error) {
	meta, ok := s.modules[name]
	if !ok {
		return ModuleMetadata{}, ErrModuleNotFound{Name: name}
	}
	return meta, nil
}

// RegisteredModules returns metadata describing installed modules, ordered by name.
func (s *Service) RegisteredModules() []ModuleMetadata {
	out := make([]ModuleMetadata, 0, len(s.modules))
	for _, meta := range s.modules {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
