package core

import (
	"bytes"
	archivecore "calendarcore/internal/archive/core"
	"calendarcore/internal/infra/persistence/memory"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ArchiveFormatVersion tags archived snapshot documents.
const ArchiveFormatVersion = 1

// ErrSnapshotUnsupported is returned when the service store cannot export or
// restore its state.
var ErrSnapshotUnsupported = errors.New("store does not support snapshots")

// Snapshotter is implemented by stores whose state can be exported and
// restored wholesale. The memory, sqlite and postgres stores all qualify.
type Snapshotter interface {
	ExportState() memory.Snapshot
	RestoreState(ctx context.Context, snapshot memory.Snapshot) error
}

// ArchiveDocument is the JSON object written to the archive.
type ArchiveDocument struct {
	FormatVersion int             `json:"format_version"`
	ArchivedAt    time.Time       `json:"archived_at"`
	Snapshot      memory.Snapshot `json:"snapshot"`
}

// ArchiveSnapshot writes the current store state to archive under key. Keys
// are write-once; an existing key fails with archivecore.ErrExists.
func (s *Service) ArchiveSnapshot(ctx context.Context, archive archivecore.Store, key string) (archivecore.Info, error) {
	var info archivecore.Info
	err := s.run(ctx, OpArchiveSnapshot, "", func(ctx context.Context) (MeetingID, error) {
		snap, ok := s.store.(Snapshotter)
		if !ok {
			return 0, ErrSnapshotUnsupported
		}
		doc := ArchiveDocument{
			FormatVersion: ArchiveFormatVersion,
			ArchivedAt:    s.clock.Now(),
			Snapshot:      snap.ExportState(),
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encode snapshot: %w", err)
		}
		info, err = archive.Put(ctx, key, bytes.NewReader(payload), archivecore.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"format-version": fmt.Sprint(ArchiveFormatVersion),
				"last-id":        doc.Snapshot.LastID.String(),
				"meetings":       fmt.Sprint(len(doc.Snapshot.Meetings)),
			},
		})
		if err != nil {
			return 0, fmt.Errorf("archive %s: %w", key, err)
		}
		return 0, nil
	})
	return info, err
}

// RestoreSnapshot replaces the store state with the snapshot archived under
// key. The meeting identifier allocator never moves backwards, so meetings
// created after the restore never reuse an identifier handed out before it.
func (s *Service) RestoreSnapshot(ctx context.Context, archive archivecore.Store, key string) (memory.Snapshot, error) {
	var restored memory.Snapshot
	err := s.run(ctx, OpRestoreSnapshot, "", func(ctx context.Context) (MeetingID, error) {
		snap, ok := s.store.(Snapshotter)
		if !ok {
			return 0, ErrSnapshotUnsupported
		}
		_, rc, err := archive.Get(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("fetch %s: %w", key, err)
		}
		defer func() { _ = rc.Close() }()
		var doc ArchiveDocument
		if err := json.NewDecoder(rc).Decode(&doc); err != nil {
			return 0, fmt.Errorf("decode %s: %w", key, err)
		}
		if doc.FormatVersion != ArchiveFormatVersion {
			return 0, fmt.Errorf("archive %s: unsupported format version %d", key, doc.FormatVersion)
		}
		if err := snap.RestoreState(ctx, doc.Snapshot); err != nil {
			return 0, fmt.Errorf("restore %s: %w", key, err)
		}
		restored = snap.ExportState()
		return 0, nil
	})
	return restored, err
}
