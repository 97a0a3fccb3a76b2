package domain

import "context"

// Transaction exposes the meeting operations a persistence implementation
// must support within an atomic scope. Every method runs the scheduling guard
// before touching state and returns a typed *Error on violation.
type Transaction interface {
	Snapshot() TransactionView
	FindMeeting(id MeetingID) (Meeting, bool)
	CreateMeeting(organizer Identity, draft MeetingDraft) (Meeting, error)
	RescheduleMeeting(caller Identity, id MeetingID, slot Slot) (Meeting, error)
	// AddParticipants returns the updated meeting and the identities that were
	// actually added, in insertion order.
	AddParticipants(caller Identity, id MeetingID, participants []Identity) (Meeting, []Identity, error)
	CancelMeeting(caller Identity, id MeetingID) (Meeting, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetMeeting(id MeetingID) (Meeting, bool)
	MeetingsFor(who Identity) []Meeting
	ListMeetings() []Meeting
}
