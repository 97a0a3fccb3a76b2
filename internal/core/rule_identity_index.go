package core

import (
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

// IdentityIndexRule checks that every identity involved in a changed meeting
// finds it exactly once among its indexed meetings.
func IdentityIndexRule() domain.Rule {
	return identityIndexRule{}
}

type identityIndexRule struct{}

func (identityIndexRule) Name() string { return "identity_index" }

func (r identityIndexRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMeeting {
			continue
		}
		m := change.After
		involved := append([]domain.Identity{m.Organizer}, m.Participants...)
		for _, who := range domain.UniqueIdentities(involved) {
			count := 0
			for _, indexed := range view.MeetingsFor(who) {
				if indexed.ID == m.ID {
					count++
				}
			}
			if count == 1 {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("identity %s indexes meeting %d %d times", who, m.ID, count),
				Entity:   domain.EntityMeeting,
				EntityID: m.ID.String(),
			})
		}
	}
	return res, nil
}
