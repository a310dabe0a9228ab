package core

import (
	"context"
	"fmt"

	"estatecore/pkg/domain"
)

// StagedAppendOnlyRule blocks any change to a staged record other than its creation.
func StagedAppendOnlyRule() domain.Rule {
	return stagedAppendOnlyRule{}
}

type stagedAppendOnlyRule struct{}

func (stagedAppendOnlyRule) Name() string { return "staged_append_only" }

func (stagedAppendOnlyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Kind != domain.KindStaged || change.Action == domain.ActionCreate {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "staged_append_only",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("staged record %s is immutable (%s refused)", change.Key, change.Action),
			Kind:     domain.KindStaged,
			Key:      change.Key,
		})
	}
	return res, nil
}
