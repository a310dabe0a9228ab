package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ParameterError reports a malformed or missing payload field.
type ParameterError struct {
	Section string
	Field   string
	Reason  string
}

func (e ParameterError) Error() string {
	var b strings.Builder
	b.WriteString("parameter error")
	if e.Section != "" {
		b.WriteString(" in ")
		b.WriteString(e.Section)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// ValidationError reports a semantic violation, e.g. staging a modification
// against an identifier that was never assigned.
type ValidationError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s %q: %s", e.Entity, e.ID, e.Reason)
}

// InternalConsistencyError signals corrupted staging state. It is fatal and never retried.
type InternalConsistencyError struct {
	TxnID    string
	Entity   EntityType
	EntityID string
	Reason   string
}

func (e InternalConsistencyError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("internal consistency error in transaction %s: %s", e.TxnID, e.Reason)
	}
	return fmt.Sprintf("internal consistency error in transaction %s for %s %s: %s", e.TxnID, e.Entity, e.EntityID, e.Reason)
}

// ConflictError reports that another in-flight transaction holds an entity.
type ConflictError struct {
	Key string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("entity %s is locked by another transaction", e.Key)
}

// NotFoundError reports a missing record, or a transaction not in the
// state an operation requires.
type NotFoundError struct {
	Kind   RecordKind
	ID     string
	Status TxnStatus
}

func (e NotFoundError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s not found in committed state (status %s)", e.Kind, e.ID, e.Status)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// RuleViolationError wraps a blocking rules engine result.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	parts := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", v.Rule, v.Message))
	}
	return "rule violation: " + strings.Join(parts, "; ")
}

// Retryable reports whether a caller may retry the failed request.
func Retryable(err error) bool {
	var conflict ConflictError
	return errors.As(err, &conflict)
}
