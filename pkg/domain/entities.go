// Package domain defines the meeting record, the scheduling guard, notification
// and rule evaluation primitives used by calendarcore.
package domain

import (
	"strconv"
	"time"
)

// Identity is an opaque, already authenticated principal. Equality is the only
// operation the core relies on.
type Identity string

// MeetingID identifies a meeting. Valid identifiers start at 1.
type MeetingID uint64

// String renders the identifier in base 10.
func (id MeetingID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Slot is the date and half-open [Start, End) interval a meeting occupies.
type Slot struct {
	Date  int64 `json:"date"`
	Start int64 `json:"start_time"`
	End   int64 `json:"end_time"`
}

// MeetingDraft carries the caller supplied fields of a meeting to be created.
type MeetingDraft struct {
	Participants []Identity
	Date         int64
	StartTime    int64
	EndTime      int64
	Agenda       string
	MeetLink     string
}

// Slot returns the draft's scheduling slot.
func (d MeetingDraft) Slot() Slot {
	return Slot{Date: d.Date, Start: d.StartTime, End: d.EndTime}
}

// Meeting is a shared meeting record. Meetings are never deleted; cancellation
// is a flag.
type Meeting struct {
	ID           MeetingID  `json:"id"`
	Organizer    Identity   `json:"organizer"`
	Participants []Identity `json:"participants"`
	Date         int64      `json:"date"`
	StartTime    int64      `json:"start_time"`
	EndTime      int64      `json:"end_time"`
	Agenda       string     `json:"agenda"`
	MeetLink     string     `json:"meet_link"`
	IsCancelled  bool       `json:"is_cancelled"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Slot returns the meeting's current scheduling slot.
func (m Meeting) Slot() Slot {
	return Slot{Date: m.Date, Start: m.StartTime, End: m.EndTime}
}

// HasParticipant reports whether who is listed as a participant.
func (m Meeting) HasParticipant(who Identity) bool {
	for _, p := range m.Participants {
		if p == who {
			return true
		}
	}
	return false
}

// Involves reports whether who organizes or participates in the meeting.
func (m Meeting) Involves(who Identity) bool {
	return m.Organizer == who || m.HasParticipant(who)
}

// Clone returns a deep copy so callers cannot alias store-owned slices.
func (m Meeting) Clone() Meeting {
	cp := m
	if m.Participants != nil {
		cp.Participants = append([]Identity(nil), m.Participants...)
	}
	return cp
}

// UniqueIdentities drops repeated identities, keeping the first occurrence.
func UniqueIdentities(in []Identity) []Identity {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Identity]struct{}, len(in))
	out := make([]Identity, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EntityType identifies the type of record referenced by changes and violations.
type EntityType string

// EntityMeeting identifies a meeting record.
const EntityMeeting EntityType = "meeting"

// Action indicates the type of modification performed.
type Action string

// Change actions recorded by transactions.
const (
	ActionCreate     Action = "create"
	ActionReschedule Action = "reschedule"
	ActionAddMembers Action = "add_participants"
	ActionCancel     Action = "cancel"
)

// Change describes a single meeting mutation captured in a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before *Meeting
	After  Meeting
}
