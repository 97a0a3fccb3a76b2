package memory

import (
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Meetings map[MeetingID]Meeting    `json:"meetings"`
	Index    map[Identity][]MeetingID `json:"index"`
	LastID   MeetingID                `json:"last_id"`
}

func snapshotFromMemoryState(state memoryState, last MeetingID) Snapshot {
	s := Snapshot{
		Meetings: make(map[MeetingID]Meeting, len(state.meetings)),
		Index:    make(map[Identity][]MeetingID, len(state.index)),
		LastID:   last,
	}
	for k, v := range state.meetings {
		s.Meetings[k] = v.Clone()
	}
	for k, v := range state.index {
		s.Index[k] = append([]MeetingID(nil), v...)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Meetings {
		state.meetings[k] = v.Clone()
	}
	for k, v := range s.Index {
		state.index[k] = append([]MeetingID(nil), v...)
	}
	return state
}

// migrateSnapshot normalises snapshots written by older builds or assembled by
// hand: it drops index entries that no longer resolve, re-indexes involvements
// the index is missing, removes duplicate participants and lifts LastID above
// every stored identifier.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Meetings == nil {
		snapshot.Meetings = map[MeetingID]Meeting{}
	}
	if snapshot.Index == nil {
		snapshot.Index = map[Identity][]MeetingID{}
	}

	for id, m := range snapshot.Meetings {
		if id == 0 {
			delete(snapshot.Meetings, id)
			continue
		}
		m.ID = id
		m.Participants = domain.UniqueIdentities(m.Participants)
		snapshot.Meetings[id] = m
		if id > snapshot.LastID {
			snapshot.LastID = id
		}
	}

	for who, ids := range snapshot.Index {
		filtered := make([]MeetingID, 0, len(ids))
		seen := make(map[MeetingID]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			m, ok := snapshot.Meetings[id]
			if !ok || !m.Involves(who) {
				continue
			}
			seen[id] = struct{}{}
			filtered = append(filtered, id)
		}
		if len(filtered) == 0 {
			delete(snapshot.Index, who)
			continue
		}
		snapshot.Index[who] = filtered
	}

	ids := make([]MeetingID, 0, len(snapshot.Meetings))
	for id := range snapshot.Meetings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m := snapshot.Meetings[id]
		for _, who := range append([]Identity{m.Organizer}, m.Participants...) {
			if !containsID(snapshot.Index[who], id) {
				snapshot.Index[who] = append(snapshot.Index[who], id)
			}
		}
	}
	return snapshot
}

func containsID(ids []MeetingID, id MeetingID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state, s.ids.Last())
}

// ImportState replaces the store state with the provided snapshot without
// running the commit hook; durable backends use it when loading. The
// identifier allocator is raised to the snapshot's floor and never lowered.
func (s *Store) ImportState(snapshot Snapshot) {
	migrated := prepareSnapshot(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrated)
	s.ids.Restore(migrated.LastID)
}

// RestoreState replaces the committed state with snapshot and runs the commit
// hook, reverting on failure. Notifications are not published for restored
// meetings.
func (s *Store) RestoreState(ctx context.Context, snapshot Snapshot) error {
	migrated := prepareSnapshot(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, floor := s.state, s.ids.Last()
	s.state = memoryStateFromSnapshot(migrated)
	s.ids.Restore(migrated.LastID)
	if err := s.runCommitHook(ctx); err != nil {
		s.state = prev
		s.ids.Rewind(floor)
		return err
	}
	return nil
}

func prepareSnapshot(snapshot Snapshot) Snapshot {
	return migrateSnapshot(snapshotFromMemoryState(memoryStateFromSnapshot(snapshot), snapshot.LastID))
}

// Snapshot bucket names used by the durable backends. Each bucket is stored
// as one JSON document.
const (
	BucketMeetings = "meetings"
	BucketIndex    = "identity_index"
	BucketSequence = "sequence"
)

// Buckets lists the persisted buckets in write order.
var Buckets = []string{BucketMeetings, BucketIndex, BucketSequence}

// EncodeBuckets splits a snapshot into its JSON bucket documents.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	parts := map[string]any{
		BucketMeetings: snapshot.Meetings,
		BucketIndex:    snapshot.Index,
		BucketSequence: snapshot.LastID,
	}
	for _, name := range Buckets {
		data, err := json.Marshal(parts[name])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from stored bucket documents. Unknown
// buckets are ignored and missing ones leave their part empty.
func DecodeBuckets(buckets map[string][]byte) (Snapshot, error) {
	var snapshot Snapshot
	targets := map[string]any{
		BucketMeetings: &snapshot.Meetings,
		BucketIndex:    &snapshot.Index,
		BucketSequence: &snapshot.LastID,
	}
	for name, payload := range buckets {
		target, ok := targets[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return snapshot, nil
}
