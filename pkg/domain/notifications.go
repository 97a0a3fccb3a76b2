package domain

import (
	"context"
	"sync"
	"time"
)

// NotificationKind names the state change a notification describes.
type NotificationKind string

// Notification kinds published after successful mutations.
const (
	MeetingCreated     NotificationKind = "MeetingCreated"
	MeetingRescheduled NotificationKind = "MeetingRescheduled"
	ParticipantAdded   NotificationKind = "ParticipantAdded"
	MeetingCancelled   NotificationKind = "MeetingCancelled"
)

// Notification is a one-way message describing a committed state change.
// Payload fields are populated per kind:
//
//	MeetingCreated      Organizer, Meeting
//	MeetingRescheduled  Slot
//	ParticipantAdded    Participant
//	MeetingCancelled    (none)
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	MeetingID   MeetingID        `json:"meeting_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Organizer   Identity         `json:"organizer,omitempty"`
	Meeting     *Meeting         `json:"meeting,omitempty"`
	Slot        *Slot            `json:"slot,omitempty"`
	Participant Identity         `json:"participant,omitempty"`
}

// NotificationSink receives notifications synchronously after each commit.
type NotificationSink interface {
	Publish(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(ctx context.Context, n Notification)

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, n Notification) { f(ctx, n) }

// NopSink discards notifications.
type NopSink struct{}

// Publish implements NotificationSink.
func (NopSink) Publish(context.Context, Notification) {}

// MultiSink fans a notification out to every sink in order.
type MultiSink []NotificationSink

// Publish implements NotificationSink.
func (m MultiSink) Publish(ctx context.Context, n Notification) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, n)
		}
	}
}

// RecordingSink keeps every notification it receives. Useful to observers that
// poll and to tests.
type RecordingSink struct {
	mu  sync.Mutex
	got []Notification
}

// Publish implements NotificationSink.
func (r *RecordingSink) Publish(_ context.Context, n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

// Notifications returns a copy of the recorded notifications.
func (r *RecordingSink) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

// Kinds returns the recorded kinds in publication order.
func (r *RecordingSink) Kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

// Reset drops recorded notifications.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	r.got = nil
	r.mu.Unlock()
}
