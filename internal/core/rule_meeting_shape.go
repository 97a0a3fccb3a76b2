package core

import (
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

// MeetingShapeRule blocks meetings with an empty or duplicated participant
// list or an inverted time range.
func MeetingShapeRule() domain.Rule {
	return meetingShapeRule{}
}

type meetingShapeRule struct{}

func (meetingShapeRule) Name() string { return "meeting_shape" }

func (r meetingShapeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMeeting {
			continue
		}
		m := change.After
		block := func(format string, args ...any) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf(format, args...),
				Entity:   domain.EntityMeeting,
				EntityID: m.ID.String(),
			})
		}
		if m.ID == 0 {
			block("meeting has no identifier")
		}
		if m.StartTime >= m.EndTime {
			block("meeting %d ends at %d, not after its start %d", m.ID, m.EndTime, m.StartTime)
		}
		if len(m.Participants) == 0 {
			block("meeting %d has no participants", m.ID)
		}
		if unique := domain.UniqueIdentities(m.Participants); len(unique) != len(m.Participants) {
			block("meeting %d lists a participant more than once", m.ID)
		}
	}
	return res, nil
}
