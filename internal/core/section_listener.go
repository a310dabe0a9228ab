package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// Mode selects the live effect a SectionListener materializes.
type Mode string

const (
	// ModeSave creates rows, generating identities marked for auto-generation.
	ModeSave Mode = "save"
	// ModeUpdate overlays payload fields on existing rows.
	ModeUpdate Mode = "update"
	// ModeDelete soft-deletes existing rows.
	ModeDelete Mode = "delete"
)

// SectionListener is the generic listener for one payload section. The
// schema supplies the entity shape; the mode decides the live effect.
type SectionListener struct {
	schema   SectionSchema
	mode     Mode
	optional bool
}

// SectionOption customises a SectionListener.
type SectionOption func(*SectionListener)

// Optional lets the listener skip transactions whose payload lacks the section.
func Optional() SectionOption {
	return func(l *SectionListener) { l.optional = true }
}

// NewSectionListener constructs a listener for schema in mode.
func NewSectionListener(schema SectionSchema, mode Mode, opts ...SectionOption) *SectionListener {
	l := &SectionListener{schema: schema, mode: mode}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SectionListener) Name() string {
	return fmt.Sprintf("%s.%s", l.mode, l.schema.Section)
}

// Schema returns the section schema the listener projects.
func (l *SectionListener) Schema() SectionSchema { return l.schema }

// LockKeys lists the live rows with caller-supplied identities.
func (l *SectionListener) LockKeys(payload Payload) []string {
	rows, err := payload.Objects(l.schema.Section)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := l.schema.ID(row); !domain.IsAutoGen(id) {
			keys = append(keys, domain.LiveKey(l.schema.Entity, id))
		}
	}
	return keys
}

func (l *SectionListener) rows(txn *BusinessTransaction) ([]Fields, error) {
	if !txn.Payload.Has(l.schema.Section) {
		if l.optional {
			return nil, nil
		}
		return nil, domain.ParameterError{Section: l.schema.Section, Reason: "section missing from payload"}
	}
	if !l.schema.Multi {
		if _, _, err := txn.Payload.Object(l.schema.Section); err != nil {
			return nil, err
		}
	}
	return txn.Payload.Objects(l.schema.Section)
}

// validate checks every row before anything is staged.
func (l *SectionListener) validate(rows []Fields) error {
	for _, row := range rows {
		id := l.schema.ID(row)
		switch l.mode {
		case ModeSave:
			if err := l.schema.Validate(row); err != nil {
				return err
			}
		case ModeUpdate, ModeDelete:
			if id == "" {
				return domain.ParameterError{Section: l.schema.Section, Field: l.schema.IDField, Reason: "required field missing"}
			}
			if domain.IsAutoGen(id) {
				return domain.ParameterError{Section: l.schema.Section, Field: l.schema.IDField, Reason: fmt.Sprintf("%s requires an existing id, got auto-generate marker %q", l.mode, id)}
			}
		default:
			return fmt.Errorf("unknown listener mode %q", l.mode)
		}
	}
	return nil
}

// StageBusiness snapshots the live row of every affected entity, then stages
// the state this transaction writes as an ADD record.
func (l *SectionListener) StageBusiness(_ context.Context, lc *Context) error {
	rows, err := l.rows(lc.Txn)
	if err != nil || len(rows) == 0 {
		return err
	}
	if err := l.validate(rows); err != nil {
		return err
	}
	generated := false
	for _, row := range rows {
		if l.mode == ModeSave && domain.IsAutoGen(l.schema.ID(row)) {
			row[l.schema.IDField] = lc.IDs.NewEntityID(l.schema.IDPrefix)
			generated = true
		}
	}
	if generated {
		lc.Txn.Payload.SetObjects(l.schema.Section, rows)
	}
	for _, row := range rows {
		id := l.schema.ID(row)
		snapshot, err := lc.Stager.SnapshotLive(lc.Txn.ID, l.schema.Entity, id, l.schema.Section)
		if err != nil {
			return err
		}
		var fields Fields
		switch l.mode {
		case ModeSave:
			fields = l.schema.Project(row)
		case ModeUpdate:
			fields = snapshot.Before.Clone()
			if fields == nil {
				fields = Fields{}
			}
			for k, v := range l.schema.Project(row) {
				fields[k] = v
			}
		case ModeDelete:
			if !snapshot.HasSnapshot() {
				return domain.ValidationError{Entity: l.schema.Entity, ID: id, Reason: "cannot delete an entity that does not exist"}
			}
			fields = snapshot.Before.Clone()
		}
		if _, err := lc.Stager.Stage(lc.Txn.ID, l.schema.Entity, id, l.schema.Section, OperationAdd, fields); err != nil {
			return err
		}
		lc.Logger.Debug("listener.stage", "listener", l.Name(), "entity", l.schema.Entity, "id", id, "had_snapshot", snapshot.HasSnapshot())
		if !l.schema.Multi {
			lc.SetOutput(l.schema.Output, id)
		}
	}
	return nil
}

// Materialize applies the staged ADD records onto live rows.
func (l *SectionListener) Materialize(_ context.Context, lc *Context) error {
	status := StatusValid
	if l.mode == ModeDelete {
		status = StatusInvalid
	}
	for _, rec := range lc.Stager.Find(lc.Txn.ID, l.addFilter()) {
		if _, err := lc.Tx.PutLive(LiveEntity{
			Entity: rec.Entity,
			ID:     rec.EntityID,
			Fields: rec.Fields.Clone(),
			Status: status,
			TxnID:  lc.Txn.ID,
		}); err != nil {
			return err
		}
		lc.Logger.Debug("listener.materialize", "listener", l.Name(), "entity", rec.Entity, "id", rec.EntityID, "status", status)
	}
	return nil
}

// Reverse restores every entity this transaction touched in the section from
// its compensating snapshot. Rows without a snapshot did not exist before the
// transaction and are soft-deleted.
func (l *SectionListener) Reverse(_ context.Context, lc *Context) error {
	for _, id := range l.touched(lc) {
		dels := lc.Stager.Find(lc.Txn.ID, StagedFilter{Entity: l.schema.Entity, EntityID: id, Operation: OperationDel})
		if len(dels) == 0 {
			return domain.InternalConsistencyError{
				TxnID:    lc.Txn.ID,
				Entity:   l.schema.Entity,
				EntityID: id,
				Reason:   "compensating snapshot record missing",
			}
		}
		snapshot := dels[0]
		row := LiveEntity{Entity: l.schema.Entity, ID: id, TxnID: lc.Txn.ID}
		if snapshot.HasSnapshot() {
			row.Fields = snapshot.Before.Clone()
			row.Status = snapshot.BeforeStatus
		} else {
			current, _ := lc.Tx.GetLive(l.schema.Entity, id)
			row.Fields = current.Fields.Clone()
			row.Status = StatusInvalid
		}
		if _, err := lc.Tx.PutLive(row); err != nil {
			return err
		}
		lc.Logger.Debug("listener.reverse", "listener", l.Name(), "entity", l.schema.Entity, "id", id, "status", row.Status)
	}
	return nil
}

func (l *SectionListener) addFilter() StagedFilter {
	return StagedFilter{Section: l.schema.Section, Entity: l.schema.Entity, Operation: OperationAdd}
}

// touched unions the ADD records of the section with live rows last written
// by the transaction, so a lost ADD record still surfaces its entity.
func (l *SectionListener) touched(lc *Context) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, rec := range lc.Stager.Find(lc.Txn.ID, l.addFilter()) {
		if _, ok := seen[rec.EntityID]; ok {
			continue
		}
		seen[rec.EntityID] = struct{}{}
		ids = append(ids, rec.EntityID)
	}
	for _, row := range lc.Tx.FindLiveByTxn(l.schema.Entity, lc.Txn.ID) {
		if _, ok := seen[row.ID]; ok {
			continue
		}
		seen[row.ID] = struct{}{}
		ids = append(ids, row.ID)
	}
	return ids
}
