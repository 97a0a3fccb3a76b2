package sqlite

import (
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
	"context"
	"path/filepath"
	"testing"
)

func createMeeting(t *testing.T, store *Store, organizer domain.Identity, participants ...domain.Identity) domain.Meeting {
	t.Helper()
	var created domain.Meeting
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateMeeting(organizer, domain.MeetingDraft{
			Participants: participants,
			Date:         1693440000,
			StartTime:    3600,
			EndTime:      7200,
			Agenda:       "Team Sync",
		})
		return err
	})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	return created
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	first := createMeeting(t, store, "0xorg", "0xalice")
	createMeeting(t, store, "0xorg", "0xbob")
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CancelMeeting("0xorg", first.ID)
		return err
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
	got := reloaded.MeetingsFor("0xalice")
	if len(got) != 1 || !got[0].IsCancelled || got[0].Agenda != "Team Sync" {
		t.Fatalf("unexpected reloaded meetings %+v", got)
	}
	if len(reloaded.MeetingsFor("0xorg")) != 2 {
		t.Fatalf("expected organizer index reloaded")
	}
	if third := createMeeting(t, reloaded, "0xorg", "0xcarol"); third.ID != 3 {
		t.Fatalf("expected allocator to resume at 3, got %d", third.ID)
	}
}

func TestSQLiteStoreWritesAllBuckets(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	createMeeting(t, store, "0xorg", "0xalice")
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != len(memory.Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(memory.Buckets), count)
	}
	var seq string
	if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = ?`, memory.BucketSequence).Scan(&seq); err != nil {
		t.Fatalf("read sequence: %v", err)
	}
	if seq != "1" {
		t.Fatalf("expected sequence 1, got %s", seq)
	}
}

func TestSQLiteStorePersistFailureRevertsCommit(t *testing.T) {
	sink := &domain.RecordingSink{}
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil, memory.WithNotificationSink(sink))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	createMeeting(t, store, "0xorg", "0xalice")
	_ = store.DB().Close()
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateMeeting("0xorg", domain.MeetingDraft{Participants: []domain.Identity{"0xbob"}, StartTime: 1, EndTime: 2})
		return err
	})
	if err == nil {
		t.Fatalf("expected persist error on closed database")
	}
	if len(store.MeetingsFor("0xbob")) != 0 || len(sink.Notifications()) != 1 {
		t.Fatalf("failed persist must not commit or notify")
	}
}

func TestSQLiteStoreRestoreStatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	snap := memory.Snapshot{
		Meetings: map[domain.MeetingID]domain.Meeting{
			4: {Organizer: "0xorg", Participants: []domain.Identity{"0xalice"}, StartTime: 1, EndTime: 2},
		},
	}
	if err := store.RestoreState(context.Background(), snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	_ = store.Close()
	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := reloaded.MeetingsFor("0xalice"); len(got) != 1 || got[0].ID != 4 {
		t.Fatalf("expected restored meeting 4, got %+v", got)
	}
	if reloaded.LastMeetingID() != 4 {
		t.Fatalf("expected allocator floor 4, got %d", reloaded.LastMeetingID())
	}
}

func TestSQLiteStoreRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)`, memory.BucketMeetings, []byte("{")); err != nil {
		t.Fatalf("seed corrupt bucket: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected decode error on corrupt state")
	}
}
