package core

import (
	"encoding/json"

	"estatecore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(TxnLifecycleRule())
	engine.Register(LiveStatusRule())
	engine.Register(StagedAppendOnlyRule())
	return engine
}

// decodeChangePayload decodes one side of a change. Absent or undecodable
// payloads report false.
func decodeChangePayload[T any](payload domain.ChangePayload) (T, bool) {
	var out T
	if !payload.Defined() || len(payload.Raw()) == 0 {
		return out, false
	}
	if err := json.Unmarshal(payload.Raw(), &out); err != nil {
		return out, false
	}
	return out, true
}

// ChangedLive returns the final state of every live row a unit of work
// touched, in change order. Rule implementations outside this package use it
// to inspect live writes without decoding change payloads themselves.
func ChangedLive(view domain.TransactionView, changes []domain.Change) []LiveEntity {
	var out []LiveEntity
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Kind != domain.KindLive {
			continue
		}
		if _, ok := seen[change.Key]; ok {
			continue
		}
		seen[change.Key] = struct{}{}
		row, ok := decodeChangePayload[LiveEntity](change.After)
		if !ok {
			continue
		}
		if current, found := view.FindLive(row.Entity, row.ID); found {
			row = current
		}
		out = append(out, row)
	}
	return out
}
