package core

import "calendarcore/pkg/domain"

type (
	Identity           = domain.Identity
	MeetingID          = domain.MeetingID
	Meeting            = domain.Meeting
	MeetingDraft       = domain.MeetingDraft
	Slot               = domain.Slot
	EntityType         = domain.EntityType
	Action             = domain.Action
	Severity           = domain.Severity
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Notification       = domain.Notification
	NotificationKind   = domain.NotificationKind
	NotificationSink   = domain.NotificationSink
)

const (
	EntityMeeting = domain.EntityMeeting
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate     = domain.ActionCreate
	ActionReschedule = domain.ActionReschedule
	ActionAddMembers = domain.ActionAddMembers
	ActionCancel     = domain.ActionCancel
)
