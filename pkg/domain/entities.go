// Package domain defines the business transaction, staged record and live
// entity types, the persistence contract, and the rule evaluation primitives
// used by estatecore.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// EntityType identifies the live table a record belongs to.
type EntityType string

// Supported entity type identifiers used in staged records and live buckets.
const (
	// EntityAgent identifies an agent (operator company) record.
	EntityAgent EntityType = "agent"
	// EntityAgentAttr identifies an agent attribute row.
	EntityAgentAttr EntityType = "agent_attr"
	// EntityAgentPhoto identifies an agent photo row.
	EntityAgentPhoto EntityType = "agent_photo"
	// EntityAgentCerdentials identifies an agent credential row.
	EntityAgentCerdentials EntityType = "agent_cerdentials"
	// EntityProperty identifies a property company record.
	EntityProperty EntityType = "property"
	// EntityPropertyAttr identifies a property attribute row.
	EntityPropertyAttr EntityType = "property_attr"
	// EntityPropertyPhoto identifies a property photo row.
	EntityPropertyPhoto EntityType = "property_photo"
	// EntityPropertyCerdentials identifies a property credential row.
	EntityPropertyCerdentials EntityType = "property_cerdentials"
	// EntityShop identifies a shop record.
	EntityShop EntityType = "shop"
	// EntityShopAttr identifies a shop attribute row.
	EntityShopAttr EntityType = "shop_attr"
	// EntityShopCatalog identifies a shop catalog record.
	EntityShopCatalog EntityType = "shop_catalog"
)

// StatusCode is the lifecycle marker carried by every live row.
type StatusCode string

const (
	// StatusValid marks the authoritative, visible row.
	StatusValid StatusCode = "0"
	// StatusInvalid marks a soft-deleted row.
	StatusInvalid StatusCode = "1"
	// StatusNew marks a row that has been created but not yet confirmed.
	StatusNew StatusCode = "2"
)

// Terminal reports whether a live row may be left in this status after a unit of work.
func (s StatusCode) Terminal() bool {
	return s == StatusValid || s == StatusInvalid
}

// Operation tags a staged record.
type Operation string

const (
	// OperationAdd stages the new state written by a transaction.
	OperationAdd Operation = "ADD"
	// OperationMod stages an in-place modification.
	OperationMod Operation = "MOD"
	// OperationDel stages the compensating snapshot of the live row before the change.
	OperationDel Operation = "DEL"
)

// TxnStatus is the lifecycle state of a business transaction.
type TxnStatus string

const (
	TxnPending   TxnStatus = "pending"
	TxnCommitted TxnStatus = "committed"
	TxnReversed  TxnStatus = "reversed"
	TxnFailed    TxnStatus = "failed"
)

// ServiceCode names one business operation, e.g. "update.property.info".
type ServiceCode string

// AutoGenPrefix marks an identity value the caller expects the system to generate.
const AutoGenPrefix = "-"

// IsAutoGen reports whether id is absent or carries the auto-generate sentinel.
func IsAutoGen(id string) bool {
	return id == "" || len(id) >= len(AutoGenPrefix) && id[:len(AutoGenPrefix)] == AutoGenPrefix
}

// ListenerPhase tracks the progress of one registered listener within a transaction.
type ListenerPhase string

const (
	PhaseNotStarted   ListenerPhase = "not_started"
	PhaseStaged       ListenerPhase = "staged"
	PhaseMaterialized ListenerPhase = "materialized"
	PhaseReversed     ListenerPhase = "reversed"
)

// CanAdvance reports whether the phase machine permits moving to next.
func (p ListenerPhase) CanAdvance(next ListenerPhase) bool {
	switch p {
	case "", PhaseNotStarted:
		return next == PhaseStaged
	case PhaseStaged:
		return next == PhaseMaterialized
	case PhaseMaterialized:
		return next == PhaseReversed
	default:
		return false
	}
}

// ListenerState records the phase reached by one registration of a transaction.
type ListenerState struct {
	Order int           `json:"order"`
	Name  string        `json:"name"`
	Phase ListenerPhase `json:"phase"`
}

// BusinessTransaction identifies one business operation and its lifecycle.
type BusinessTransaction struct {
	ID           string            `json:"txn_id"`
	ServiceCode  ServiceCode       `json:"service_code"`
	Status       TxnStatus         `json:"status"`
	Payload      Payload           `json:"payload"`
	OutputParams map[string]string `json:"output_params,omitempty"`
	Listeners    []ListenerState   `json:"listeners,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Listener returns the recorded state for the registration at order.
func (t BusinessTransaction) Listener(order int) (ListenerState, bool) {
	for _, st := range t.Listeners {
		if st.Order == order {
			return st, true
		}
	}
	return ListenerState{}, false
}

// SetListener inserts or replaces the state for st.Order, keeping the ledger ordered.
func (t *BusinessTransaction) SetListener(st ListenerState) {
	for i := range t.Listeners {
		if t.Listeners[i].Order == st.Order {
			t.Listeners[i] = st
			return
		}
	}
	t.Listeners = append(t.Listeners, st)
	sort.Slice(t.Listeners, func(i, j int) bool { return t.Listeners[i].Order < t.Listeners[j].Order })
}

// Clone returns a deep copy safe to hand across unit-of-work boundaries.
func (t BusinessTransaction) Clone() BusinessTransaction {
	cp := t
	cp.Payload = t.Payload.Clone()
	if t.OutputParams != nil {
		cp.OutputParams = make(map[string]string, len(t.OutputParams))
		for k, v := range t.OutputParams {
			cp.OutputParams[k] = v
		}
	}
	cp.Listeners = append([]ListenerState(nil), t.Listeners...)
	return cp
}

// StagedRecord is one immutable row of staged state for an entity touched by a transaction.
type StagedRecord struct {
	TxnID        string     `json:"txn_id"`
	Seq          int64      `json:"seq"`
	Entity       EntityType `json:"entity"`
	EntityID     string     `json:"entity_id"`
	Section      string     `json:"section"`
	Operation    Operation  `json:"operation"`
	Before       Fields     `json:"before,omitempty"`
	BeforeStatus StatusCode `json:"before_status,omitempty"`
	Fields       Fields     `json:"fields,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasSnapshot reports whether the record captured an existing live row.
func (r StagedRecord) HasSnapshot() bool {
	return r.BeforeStatus != ""
}

// Key returns the storage key of the record, unique across all transactions.
func (r StagedRecord) Key() string {
	return StagedKey(r.TxnID, r.Seq)
}

// Clone returns a deep copy of the record.
func (r StagedRecord) Clone() StagedRecord {
	cp := r
	cp.Before = r.Before.Clone()
	cp.Fields = r.Fields.Clone()
	return cp
}

// LiveEntity is the materialized, currently authoritative row.
type LiveEntity struct {
	Entity    EntityType `json:"entity"`
	ID        string     `json:"id"`
	Fields    Fields     `json:"fields"`
	Status    StatusCode `json:"status_cd"`
	TxnID     string     `json:"txn_id"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Key returns the storage key of the live row.
func (e LiveEntity) Key() string {
	return LiveKey(e.Entity, e.ID)
}

// Clone returns a deep copy of the row.
func (e LiveEntity) Clone() LiveEntity {
	cp := e
	cp.Fields = e.Fields.Clone()
	return cp
}

// LiveKey builds the storage key for a live row.
func LiveKey(entity EntityType, id string) string {
	return string(entity) + "/" + id
}

// StagedKey builds the storage key for a staged record.
func StagedKey(txnID string, seq int64) string {
	return fmt.Sprintf("%s/%010d", txnID, seq)
}

// RecordKind identifies which bucket a Change touches.
type RecordKind string

const (
	KindTransaction RecordKind = "transaction"
	KindStaged      RecordKind = "staged"
	KindLive        RecordKind = "live"
)

// Change describes a mutation applied to a bucket during a unit of work.
type Change struct {
	Kind   RecordKind
	Action Action
	Key    string
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in a unit of work.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity determines how a rule violation affects commit.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Kind     RecordKind
	Key      string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
