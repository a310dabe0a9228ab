package core

import (
	"estatecore/pkg/domain"
)

// Stager writes staged records through the active unit of work.
type Stager struct {
	tx domain.Transaction
}

// NewStager binds a stager to tx.
func NewStager(tx domain.Transaction) *Stager {
	return &Stager{tx: tx}
}

// Stage appends an immutable record for entityID. Identities must be
// assigned before staging; modifications and deletions additionally refuse
// the auto-generate marker because they target an existing row.
func (s *Stager) Stage(txnID string, entity EntityType, entityID, section string, op Operation, fields Fields) (StagedRecord, error) {
	if err := checkStageIdentity(entity, entityID, op); err != nil {
		return StagedRecord{}, err
	}
	return s.tx.AppendStaged(StagedRecord{
		TxnID:     txnID,
		Entity:    entity,
		EntityID:  entityID,
		Section:   section,
		Operation: op,
		Fields:    fields.Clone(),
	})
}

// SnapshotLive writes the compensating DEL record capturing the live row as
// it is before this transaction changes it. When the row does not exist the
// record carries an empty snapshot. A second call for the same entity within
// one transaction returns the first snapshot.
func (s *Stager) SnapshotLive(txnID string, entity EntityType, entityID, section string) (StagedRecord, error) {
	if err := checkStageIdentity(entity, entityID, OperationDel); err != nil {
		return StagedRecord{}, err
	}
	if existing := s.tx.FindStaged(txnID, StagedFilter{Entity: entity, EntityID: entityID, Operation: OperationDel}); len(existing) > 0 {
		return existing[0], nil
	}
	rec := StagedRecord{
		TxnID:     txnID,
		Entity:    entity,
		EntityID:  entityID,
		Section:   section,
		Operation: OperationDel,
	}
	if live, ok := s.tx.GetLive(entity, entityID); ok {
		rec.Before = live.Fields.Clone()
		if rec.Before == nil {
			rec.Before = Fields{}
		}
		rec.BeforeStatus = live.Status
	}
	return s.tx.AppendStaged(rec)
}

// Find returns the staged records of txnID matching filter in insertion order.
func (s *Stager) Find(txnID string, filter StagedFilter) []StagedRecord {
	return s.tx.FindStaged(txnID, filter)
}

func checkStageIdentity(entity EntityType, entityID string, op Operation) error {
	if entityID == "" {
		return domain.ValidationError{Entity: entity, ID: entityID, Reason: "entity id required"}
	}
	if !domain.IsAutoGen(entityID) {
		return nil
	}
	switch op {
	case OperationMod, OperationDel:
		return domain.ValidationError{Entity: entity, ID: entityID, Reason: "operation requires an existing entity id, got auto-generate marker"}
	default:
		return domain.ValidationError{Entity: entity, ID: entityID, Reason: "entity id not assigned"}
	}
}
