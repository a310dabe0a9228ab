package core

import (
	"fmt"
	"sort"
	"sync"

	"estatecore/pkg/domain"
)

// Registration binds a listener to a position in a service code's chain.
type Registration struct {
	ServiceCode ServiceCode
	Order       int
	Listener    Listener
}

// Registry holds the listener registrations built at startup. It is passed
// explicitly to the chain and the recovery controller.
type Registry struct {
	mu     sync.RWMutex
	byCode map[ServiceCode]map[int]Registration
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byCode: make(map[ServiceCode]map[int]Registration)}
}

// Register adds listener at order for code. Orders are unique per service code.
func (r *Registry) Register(code ServiceCode, order int, listener Listener) error {
	if code == "" {
		return fmt.Errorf("service code required")
	}
	if listener == nil {
		return fmt.Errorf("listener cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	regs, ok := r.byCode[code]
	if !ok {
		regs = make(map[int]Registration)
		r.byCode[code] = regs
	}
	if existing, dup := regs[order]; dup {
		return fmt.Errorf("service %s order %d already registered to %s", code, order, existing.Listener.Name())
	}
	regs[order] = Registration{ServiceCode: code, Order: order, Listener: listener}
	return nil
}

// Resolve returns the registrations for code sorted ascending by order.
func (r *Registry) Resolve(code ServiceCode) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.byCode[code]
	if len(regs) == 0 {
		return nil, domain.ParameterError{Field: "serviceCode", Reason: fmt.Sprintf("no listeners registered for %s", code)}
	}
	out := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// ServiceCodes lists every registered service code in lexical order.
func (r *Registry) ServiceCodes() []ServiceCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceCode, 0, len(r.byCode))
	for code := range r.byCode {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
