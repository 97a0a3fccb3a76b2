package core

import (
	"calendarcore/pkg/domain"
	"context"
	"fmt"
)

// MeetingTransitionRule blocks illegal changes to an existing meeting:
// reviving a cancelled meeting, touching immutable fields, or removing and
// reordering participants.
func MeetingTransitionRule() domain.Rule {
	return meetingTransitionRule{}
}

type meetingTransitionRule struct{}

func (meetingTransitionRule) Name() string { return "meeting_transition" }

func (r meetingTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMeeting || change.Before == nil {
			continue
		}
		before, after := *change.Before, change.After
		block := func(format string, args ...any) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf(format, args...),
				Entity:   domain.EntityMeeting,
				EntityID: after.ID.String(),
			})
		}
		if before.IsCancelled && change.Action != domain.ActionCancel {
			block("meeting %d is cancelled and cannot be changed", before.ID)
		}
		if before.IsCancelled && !after.IsCancelled {
			block("meeting %d cannot be un-cancelled", before.ID)
		}
		if before.ID != after.ID || before.Organizer != after.Organizer {
			block("meeting %d identity and organizer are immutable", before.ID)
		}
		if before.Agenda != after.Agenda || before.MeetLink != after.MeetLink {
			block("meeting %d agenda and link are immutable", before.ID)
		}
		if !hasPrefix(after.Participants, before.Participants) {
			block("meeting %d participants are append-only", before.ID)
		}
	}
	return res, nil
}

func hasPrefix(list, prefix []domain.Identity) bool {
	if len(prefix) > len(list) {
		return false
	}
	for i, who := range prefix {
		if list[i] != who {
			return false
		}
	}
	return true
}
