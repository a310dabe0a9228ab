package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// LiveStatusRule requires every live row written by a unit of work to end
// in a terminal status (valid or invalid).
func LiveStatusRule() domain.Rule {
	return liveStatusRule{}
}

type liveStatusRule struct{}

func (liveStatusRule) Name() string { return "live_status" }

func (liveStatusRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	// Judge the final state of the unit, not intermediate writes.
	for _, row := range ChangedLive(view, changes) {
		if row.Status.Terminal() {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "live_status",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s left in non-terminal status %q", row.Entity, row.ID, row.Status),
			Kind:     domain.KindLive,
			Key:      row.Key(),
		})
	}
	return res, nil
}
