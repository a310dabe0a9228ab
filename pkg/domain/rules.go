package domain

import (
	"context"
	"fmt"
	"sync"
)

// RuleView is the read-only state a rule sees: committed rows overlaid with
// the changes of the unit being checked.
type RuleView interface {
	TransactionView
}

// Rule checks the changes of one unit of work before it commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs every registered rule against a unit and merges the
// violations. Modules register rules while the service starts, so the rule
// list is guarded.
type RulesEngine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rule. Nil rules and names already registered are ignored,
// so installing the same rule twice evaluates it once.
func (e *RulesEngine) Register(rule Rule) {
	if rule == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.Name() == rule.Name() {
			return
		}
	}
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in registration order.
func (e *RulesEngine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate runs the rules in registration order. The first rule error aborts
// evaluation and is returned with the rule name attached.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	e.mu.RLock()
	rules := append([]Rule(nil), e.rules...)
	e.mu.RUnlock()

	var combined Result
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
