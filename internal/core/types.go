package core

import "estatecore/pkg/domain"

type (
	EntityType          = domain.EntityType
	ServiceCode         = domain.ServiceCode
	StatusCode          = domain.StatusCode
	Operation           = domain.Operation
	TxnStatus           = domain.TxnStatus
	Fields              = domain.Fields
	Payload             = domain.Payload
	BusinessTransaction = domain.BusinessTransaction
	StagedRecord        = domain.StagedRecord
	StagedFilter        = domain.StagedFilter
	LiveEntity          = domain.LiveEntity
	SectionSchema       = domain.SectionSchema
	Severity            = domain.Severity
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	Rule                = domain.Rule
	RuleView            = domain.RuleView
	RulesEngine         = domain.RulesEngine
	RuleViolationError  = domain.RuleViolationError
)

const (
	StatusValid   = domain.StatusValid
	StatusInvalid = domain.StatusInvalid
	StatusNew     = domain.StatusNew
)

const (
	OperationAdd = domain.OperationAdd
	OperationMod = domain.OperationMod
	OperationDel = domain.OperationDel
)

const (
	TxnPending   = domain.TxnPending
	TxnCommitted = domain.TxnCommitted
	TxnReversed  = domain.TxnReversed
	TxnFailed    = domain.TxnFailed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
