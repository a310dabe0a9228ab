package core

import (
	"fmt"
	"sort"
)

// Module describes a domain module (agent, property, shop, ...) that
// contributes listener registrations, section schemas and rules.
type Module interface {
	Name() string
	Version() string
	Register(registry *ModuleRegistry) error
}

// ModuleRegistry accumulates module contributions during registration.
type ModuleRegistry struct {
	registrations []Registration
	rules         []Rule
	schemas       map[string]SectionSchema
}

// NewModuleRegistry constructs a module registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{schemas: make(map[string]SectionSchema)}
}

// RegisterListener queues a listener registration for code at order.
func (r *ModuleRegistry) RegisterListener(code ServiceCode, order int, listener Listener) {
	r.registrations = append(r.registrations, Registration{ServiceCode: code, Order: order, Listener: listener})
}

// RegisterRule adds an in-transaction rule contributed by the module.
func (r *ModuleRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterSchema stores the section schema so callers can introspect the
// payload shape a module accepts.
func (r *ModuleRegistry) RegisterSchema(schema SectionSchema) error {
	if schema.Section == "" || schema.Entity == "" {
		return fmt.Errorf("schema requires section and entity")
	}
	if _, exists := r.schemas[schema.Section]; exists {
		return fmt.Errorf("section %s already registered", schema.Section)
	}
	r.schemas[schema.Section] = schema
	return nil
}

// Registrations returns a copy of queued listener registrations.
func (r *ModuleRegistry) Registrations() []Registration {
	out := make([]Registration, len(r.registrations))
	copy(out, r.registrations)
	return out
}

// Rules returns a copy of registered rules.
func (r *ModuleRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Schemas returns the registered section schemas ordered by section name.
func (r *ModuleRegistry) Schemas() []SectionSchema {
	out := make([]SectionSchema, 0, len(r.schemas))
	for _, schema := range r.schemas {
		out = append(out, schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	return out
}

// ModuleMetadata stores metadata describing an installed module.
type ModuleMetadata struct {
	Name         string
	Version      string
	ServiceCodes []ServiceCode
	Sections     []string
}
