package core

import (
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

// OrganizerOverlapRule warns when a created or rescheduled meeting overlaps
// another active meeting of its organizer. Overlaps are allowed, so the rule
// never blocks; it is not part of the default engine.
func OrganizerOverlapRule() domain.Rule {
	return organizerOverlapRule{}
}

type organizerOverlapRule struct{}

func (organizerOverlapRule) Name() string { return "organizer_overlap" }

func (r organizerOverlapRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMeeting {
			continue
		}
		if change.Action != domain.ActionCreate && change.Action != domain.ActionReschedule {
			continue
		}
		m := change.After
		for _, other := range view.MeetingsFor(m.Organizer) {
			if other.ID == m.ID || other.IsCancelled || other.Date != m.Date {
				continue
			}
			if !domain.Overlaps(m.StartTime, m.EndTime, other.StartTime, other.EndTime) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("meeting %d overlaps meeting %d of organizer %s", m.ID, other.ID, m.Organizer),
				Entity:   domain.EntityMeeting,
				EntityID: m.ID.String(),
			})
		}
	}
	return res, nil
}
