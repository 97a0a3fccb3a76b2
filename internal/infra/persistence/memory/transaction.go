package memory

import (
	"calendarcore/pkg/domain"
	"time"
)

// transaction is a copy-on-write overlay over the committed state. Meetings
// touched by the transaction live in dirty; identity index entries added by
// the transaction live in appended. Nothing reaches base until commit.
type transaction struct {
	store    *Store
	base     *memoryState
	dirty    map[MeetingID]Meeting
	appended map[Identity][]MeetingID
	changes  []Change
	pending  []Notification
	now      time.Time
}

// txView exposes the overlay to rules and to callers of Snapshot.
type txView struct {
	tx *transaction
}

func (tx *transaction) lookup(id MeetingID) (Meeting, bool) {
	if m, ok := tx.dirty[id]; ok {
		return m, true
	}
	m, ok := tx.base.meetings[id]
	return m, ok
}

func (tx *transaction) indexMeeting(who Identity, id MeetingID) {
	tx.appended[who] = append(tx.appended[who], id)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) notify(n Notification) {
	n.ID = tx.store.newEventID()
	n.OccurredAt = tx.now
	tx.pending = append(tx.pending, n)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return txView{tx: tx}
}

// FindMeeting exposes meeting lookup within the transaction scope.
func (tx *transaction) FindMeeting(id MeetingID) (Meeting, bool) {
	m, ok := tx.lookup(id)
	if !ok {
		return Meeting{}, false
	}
	return m.Clone(), true
}

// CreateMeeting validates the draft, allocates an identifier and indexes the
// organizer and every distinct participant.
func (tx *transaction) CreateMeeting(organizer Identity, draft domain.MeetingDraft) (Meeting, error) {
	if err := domain.ValidateDraft(draft); err != nil {
		return Meeting{}, err
	}
	participants := domain.UniqueIdentities(draft.Participants)
	m := Meeting{
		ID:           tx.store.ids.Next(),
		Organizer:    organizer,
		Participants: participants,
		Date:         draft.Date,
		StartTime:    draft.StartTime,
		EndTime:      draft.EndTime,
		Agenda:       draft.Agenda,
		MeetLink:     draft.MeetLink,
		CreatedAt:    tx.now,
		UpdatedAt:    tx.now,
	}
	tx.dirty[m.ID] = m
	tx.indexMeeting(organizer, m.ID)
	for _, p := range participants {
		if p != organizer {
			tx.indexMeeting(p, m.ID)
		}
	}
	tx.recordChange(Change{Entity: domain.EntityMeeting, Action: domain.ActionCreate, After: m.Clone()})
	created := m.Clone()
	tx.notify(Notification{
		Kind:      domain.MeetingCreated,
		MeetingID: m.ID,
		Organizer: organizer,
		Meeting:   &created,
	})
	return m.Clone(), nil
}

// RescheduleMeeting moves an active meeting to a new slot. All checks run
// before the overlay is touched.
func (tx *transaction) RescheduleMeeting(caller Identity, id MeetingID, slot domain.Slot) (Meeting, error) {
	current, ok := tx.lookup(id)
	if !ok {
		return Meeting{}, domain.NotFound(id)
	}
	if err := domain.ValidateMutation(caller, current); err != nil {
		return Meeting{}, err
	}
	if err := domain.ValidateTimeRange(slot.Start, slot.End); err != nil {
		return Meeting{}, err
	}
	before := current.Clone()
	updated := current.Clone()
	updated.Date = slot.Date
	updated.StartTime = slot.Start
	updated.EndTime = slot.End
	updated.UpdatedAt = tx.now
	tx.dirty[id] = updated
	tx.recordChange(Change{Entity: domain.EntityMeeting, Action: domain.ActionReschedule, Before: &before, After: updated.Clone()})
	newSlot := slot
	tx.notify(Notification{Kind: domain.MeetingRescheduled, MeetingID: id, Slot: &newSlot})
	return updated.Clone(), nil
}

// AddParticipants appends identities not yet listed, in request order.
// Identities already present are skipped without error or notification.
func (tx *transaction) AddParticipants(caller Identity, id MeetingID, participants []Identity) (Meeting, []Identity, error) {
	current, ok := tx.lookup(id)
	if !ok {
		return Meeting{}, nil, domain.NotFound(id)
	}
	if err := domain.ValidateMutation(caller, current); err != nil {
		return Meeting{}, nil, err
	}
	if err := domain.ValidateParticipants(participants); err != nil {
		return Meeting{}, nil, err
	}
	before := current.Clone()
	updated := current.Clone()
	var added []Identity
	for _, p := range participants {
		if updated.HasParticipant(p) {
			continue
		}
		alreadyIndexed := p == updated.Organizer
		updated.Participants = append(updated.Participants, p)
		added = append(added, p)
		if !alreadyIndexed {
			tx.indexMeeting(p, id)
		}
	}
	if len(added) == 0 {
		return current.Clone(), nil, nil
	}
	updated.UpdatedAt = tx.now
	tx.dirty[id] = updated
	tx.recordChange(Change{Entity: domain.EntityMeeting, Action: domain.ActionAddMembers, Before: &before, After: updated.Clone()})
	for _, p := range added {
		tx.notify(Notification{Kind: domain.ParticipantAdded, MeetingID: id, Participant: p})
	}
	return updated.Clone(), added, nil
}

// CancelMeeting flags the meeting as cancelled. Cancellation is irreversible.
func (tx *transaction) CancelMeeting(caller Identity, id MeetingID) (Meeting, error) {
	current, ok := tx.lookup(id)
	if !ok {
		return Meeting{}, domain.NotFound(id)
	}
	if err := domain.ValidateOrganizer(caller, current); err != nil {
		return Meeting{}, err
	}
	if current.IsCancelled {
		return Meeting{}, &domain.Error{Code: domain.CodeAlreadyCancelled, MeetingID: id}
	}
	before := current.Clone()
	updated := current.Clone()
	updated.IsCancelled = true
	updated.UpdatedAt = tx.now
	tx.dirty[id] = updated
	tx.recordChange(Change{Entity: domain.EntityMeeting, Action: domain.ActionCancel, Before: &before, After: updated.Clone()})
	tx.notify(Notification{Kind: domain.MeetingCancelled, MeetingID: id})
	return updated.Clone(), nil
}

func (v txView) FindMeeting(id MeetingID) (Meeting, bool) {
	return v.tx.FindMeeting(id)
}

func (v txView) MeetingsFor(who Identity) []Meeting {
	committed := v.tx.base.index[who]
	extra := v.tx.appended[who]
	out := make([]Meeting, 0, len(committed)+len(extra))
	for _, ids := range [][]MeetingID{committed, extra} {
		for _, id := range ids {
			if m, ok := v.tx.lookup(id); ok {
				out = append(out, m.Clone())
			}
		}
	}
	return out
}

func (v txView) ListMeetings() []Meeting {
	return sortedMeetings(v.tx.base.meetings, v.tx.dirty)
}
