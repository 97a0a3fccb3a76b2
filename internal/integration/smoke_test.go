package integration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	archivecore "calendarcore/internal/archive/core"
	"calendarcore/internal/core"
	archivefs "calendarcore/internal/infra/archive/fs"
	archivemem "calendarcore/internal/infra/archive/memory"
	archives3 "calendarcore/internal/infra/archive/s3"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/internal/infra/persistence/postgres"
	pgstub "calendarcore/internal/infra/persistence/postgres/testutil"
	"calendarcore/pkg/domain"
)

type storeVariant struct {
	name string
	open func(t *testing.T, sink domain.NotificationSink) core.PersistentStore
}

func storeVariants() []storeVariant {
	return []storeVariant{
		{
			name: "memory-store",
			open: func(_ *testing.T, sink domain.NotificationSink) core.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine(), memory.WithNotificationSink(sink))
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T, sink domain.NotificationSink) core.PersistentStore {
				s, err := core.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), core.NewDefaultRulesEngine(), memory.WithNotificationSink(sink))
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "postgres-store",
			open: func(t *testing.T, sink domain.NotificationSink) core.PersistentStore {
				db, _ := pgstub.NewStubDB()
				restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
				defer restore()
				s, err := core.NewPostgresStore(context.Background(), "postgres://stub", core.NewDefaultRulesEngine(), memory.WithNotificationSink(sink))
				if err != nil {
					t.Fatalf("new postgres store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
}

func archiveVariants() []struct {
	name string
	open func(t *testing.T) archivecore.Store
} {
	return []struct {
		name string
		open func(t *testing.T) archivecore.Store
	}{
		{name: "memory-archive", open: func(*testing.T) archivecore.Store { return archivemem.New() }},
		{name: "filesystem-archive", open: func(t *testing.T) archivecore.Store {
			s, err := archivefs.New(t.TempDir())
			if err != nil {
				t.Fatalf("new filesystem archive: %v", err)
			}
			return s
		}},
		{name: "mock-s3-archive", open: func(*testing.T) archivecore.Store { return archives3.NewMock(0) }},
	}
}

// TestIntegrationSmoke runs a short ledger session against every store
// backend, then archives it to every archive backend and restores it into a
// fresh store of the same kind.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	for _, sv := range storeVariants() {
		t.Run(sv.name, func(t *testing.T) {
			sink := &domain.RecordingSink{}
			metricsRecorder := core.NewLedgerStats("")
			var traceBuffer bytes.Buffer
			tracer := core.NewSpanJournal(&traceBuffer)
			svc := core.NewService(sv.open(t, sink),
				core.WithMetricsRecorder(metricsRecorder),
				core.WithTracer(tracer),
			)

			m, res, err := svc.CreateMeeting(ctx, "0xorg", core.MeetingDraft{
				Participants: []core.Identity{"0xa", "0xb"},
				Date:         20,
				StartTime:    900,
				EndTime:      1000,
				Agenda:       "planning",
			})
			if err != nil {
				t.Fatalf("create meeting: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("unexpected blocking violations: %+v", res.Violations)
			}
			if _, _, err := svc.AddParticipants(ctx, "0xorg", m.ID, []core.Identity{"0xc"}); err != nil {
				t.Fatalf("add participants: %v", err)
			}
			if free, err := svc.CheckAvailability(ctx, "0xc", 20, 950, 1050); err != nil || free {
				t.Fatalf("expected 0xc busy, free=%v err=%v", free, err)
			}
			if free, err := svc.CheckAvailability(ctx, "0xc", 20, 1000, 1100); err != nil || !free {
				t.Fatalf("adjacent slot must be free, free=%v err=%v", free, err)
			}
			if got := sink.Kinds(); len(got) != 2 || got[0] != domain.MeetingCreated || got[1] != domain.ParticipantAdded {
				t.Fatalf("unexpected notifications %v", got)
			}

			snapshot := metricsRecorder.Snapshot()
			if snapshot.Operations[core.OpCreateMeeting].OK == 0 {
				t.Fatalf("expected create_meeting success recorded: %+v", snapshot.Operations)
			}
			if traceBuffer.Len() == 0 {
				t.Fatalf("expected trace exporter to emit spans")
			}

			for _, av := range archiveVariants() {
				t.Run(av.name, func(t *testing.T) {
					archive := av.open(t)
					if _, err := svc.ArchiveSnapshot(ctx, archive, "ledger/smoke.json"); err != nil {
						t.Fatalf("archive snapshot: %v", err)
					}
					target := core.NewService(sv.open(t, domain.NopSink{}))
					restored, err := target.RestoreSnapshot(ctx, archive, "ledger/smoke.json")
					if err != nil {
						t.Fatalf("restore snapshot: %v", err)
					}
					if len(restored.Meetings) != 1 || restored.LastID != m.ID {
						t.Fatalf("unexpected restored snapshot %+v", restored)
					}
					meetings, err := target.MeetingsByIdentity(ctx, "0xc")
					if err != nil || len(meetings) != 1 || meetings[0].Agenda != "planning" {
						t.Fatalf("expected restored meeting for 0xc, got %+v err=%v", meetings, err)
					}
				})
			}
		})
	}
}
