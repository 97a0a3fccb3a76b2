package core

import (
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
	"context"
	"time"
)

// Operation names reported to loggers, audit, metrics and tracing.
const (
	OpCreateMeeting      = "create_meeting"
	OpRescheduleMeeting  = "reschedule_meeting"
	OpAddParticipants    = "add_participants"
	OpCancelMeeting      = "cancel_meeting"
	OpMeetingsByIdentity = "meetings_by_identity"
	OpGetMeeting         = "get_meeting"
	OpListMeetings       = "list_meetings"
	OpCheckAvailability  = "check_availability"
	OpConflicts          = "conflicts"
	OpArchiveSnapshot    = "archive_snapshot"
	OpRestoreSnapshot    = "restore_snapshot"
)

type operationMeta struct {
	entity EntityType
	action Action
}

// auditedOperations lists the mutating operations; reads are not audited.
var auditedOperations = map[string]operationMeta{
	OpCreateMeeting:     {entity: EntityMeeting, action: ActionCreate},
	OpRescheduleMeeting: {entity: EntityMeeting, action: ActionReschedule},
	OpAddParticipants:   {entity: EntityMeeting, action: ActionAddMembers},
	OpCancelMeeting:     {entity: EntityMeeting, action: ActionCancel},
}

// Service exposes the meeting ledger operations on top of a persistent store.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	clock   Clock
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	plugins map[string]PluginMetadata
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. nil restores the discarding default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger == nil {
			logger = noopLogger{}
		}
		s.logger = logger
	}
}

// WithClock overrides the clock used for audit timestamps and durations.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder registers a recorder for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder registers a recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer registers a tracer starting a span per operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		clock:   systemClock{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		plugins: make(map[string]PluginMetadata),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// CreateMeeting validates draft, allocates an identifier and stores the
// meeting with organizer as its only mutator.
func (s *Service) CreateMeeting(ctx context.Context, organizer Identity, draft MeetingDraft) (Meeting, Result, error) {
	var created Meeting
	var res Result
	err := s.run(ctx, OpCreateMeeting, organizer, func(ctx context.Context) (MeetingID, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateMeeting(organizer, draft)
			return err
		})
		return created.ID, err
	})
	if err != nil {
		return Meeting{}, res, err
	}
	return created, res, nil
}

// RescheduleMeeting moves meeting id to slot.
func (s *Service) RescheduleMeeting(ctx context.Context, caller Identity, id MeetingID, slot Slot) (Meeting, Result, error) {
	var updated Meeting
	var res Result
	err := s.run(ctx, OpRescheduleMeeting, caller, func(ctx context.Context) (MeetingID, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.RescheduleMeeting(caller, id, slot)
			return err
		})
		return id, err
	})
	if err != nil {
		return Meeting{}, res, err
	}
	return updated, res, nil
}

// AddParticipants appends the identities not yet listed on meeting id.
func (s *Service) AddParticipants(ctx context.Context, caller Identity, id MeetingID, participants []Identity) (Meeting, Result, error) {
	var updated Meeting
	var res Result
	err := s.run(ctx, OpAddParticipants, caller, func(ctx context.Context) (MeetingID, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, _, err = tx.AddParticipants(caller, id, participants)
			return err
		})
		return id, err
	})
	if err != nil {
		return Meeting{}, res, err
	}
	return updated, res, nil
}

// CancelMeeting flags meeting id as cancelled. Cancellation is final.
func (s *Service) CancelMeeting(ctx context.Context, caller Identity, id MeetingID) (Meeting, Result, error) {
	var cancelled Meeting
	var res Result
	err := s.run(ctx, OpCancelMeeting, caller, func(ctx context.Context) (MeetingID, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			cancelled, err = tx.CancelMeeting(caller, id)
			return err
		})
		return id, err
	})
	if err != nil {
		return Meeting{}, res, err
	}
	return cancelled, res, nil
}

// MeetingsByIdentity returns every meeting who organizes or participates in,
// cancelled ones included, in the order they became involved. Unknown
// identities yield an empty slice.
func (s *Service) MeetingsByIdentity(ctx context.Context, who Identity) ([]Meeting, error) {
	var out []Meeting
	err := s.run(ctx, OpMeetingsByIdentity, who, func(ctx context.Context) (MeetingID, error) {
		return 0, s.store.View(ctx, func(v TransactionView) error {
			out = v.MeetingsFor(who)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Meeting{}
	}
	return out, nil
}

// GetMeeting returns meeting id or ErrNotFound.
func (s *Service) GetMeeting(ctx context.Context, id MeetingID) (Meeting, error) {
	var m Meeting
	err := s.run(ctx, OpGetMeeting, "", func(context.Context) (MeetingID, error) {
		found, ok := s.store.GetMeeting(id)
		if !ok {
			return id, domain.NotFound(id)
		}
		m = found
		return id, nil
	})
	return m, err
}

// ListMeetings returns every meeting ordered by identifier.
func (s *Service) ListMeetings(ctx context.Context) ([]Meeting, error) {
	var out []Meeting
	err := s.run(ctx, OpListMeetings, "", func(ctx context.Context) (MeetingID, error) {
		return 0, s.store.View(ctx, func(v TransactionView) error {
			out = v.ListMeetings()
			return nil
		})
	})
	return out, err
}

// CheckAvailability reports whether who has no active meeting on date
// overlapping [start,end).
func (s *Service) CheckAvailability(ctx context.Context, who Identity, date, start, end int64) (bool, error) {
	var free bool
	err := s.run(ctx, OpCheckAvailability, who, func(ctx context.Context) (MeetingID, error) {
		return 0, s.store.View(ctx, func(v TransactionView) error {
			var err error
			free, err = domain.CheckAvailability(v.MeetingsFor(who), date, start, end)
			return err
		})
	})
	return free, err
}

// Conflicts returns who's active meetings on date overlapping [start,end).
func (s *Service) Conflicts(ctx context.Context, who Identity, date, start, end int64) ([]Meeting, error) {
	var out []Meeting
	err := s.run(ctx, OpConflicts, who, func(ctx context.Context) (MeetingID, error) {
		return 0, s.store.View(ctx, func(v TransactionView) error {
			var err error
			out, err = domain.Conflicts(v.MeetingsFor(who), date, start, end)
			return err
		})
	})
	return out, err
}

// run wraps an operation with tracing, metrics, logging and audit.
func (s *Service) run(ctx context.Context, op string, caller Identity, fn func(context.Context) (MeetingID, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := s.clock.Now()
	id, err := fn(ctx)
	duration := s.clock.Now().Sub(started)
	if ms, ok := span.(MeetingSpan); ok && id != 0 {
		ms.Annotate(id, caller)
	}
	span.End(err)
	if oc, ok := s.metrics.(OutcomeRecorder); ok {
		oc.ObserveOutcome(ctx, op, err, duration)
	} else {
		s.metrics.Observe(ctx, op, err == nil, duration)
	}

	attrs := []any{"operation", op, "duration", duration}
	if caller != "" {
		attrs = append(attrs, "caller", string(caller))
	}
	if id != 0 {
		attrs = append(attrs, "meeting_id", uint64(id))
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		if isCallerError(err) {
			s.logger.Debug("operation rejected", attrs...)
		} else {
			s.logger.Error("operation failed", attrs...)
		}
		s.recordAudit(ctx, op, caller, id, duration, err)
		return err
	}
	if _, mutating := auditedOperations[op]; mutating {
		s.logger.Info("operation committed", attrs...)
	} else {
		s.logger.Debug("operation served", attrs...)
	}
	s.recordAudit(ctx, op, caller, id, duration, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op string, caller Identity, id MeetingID, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		Caller:    caller,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if id != 0 {
		entry.EntityID = id.String()
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// isCallerError reports whether err stems from caller input or authorization
// rather than infrastructure.
func isCallerError(err error) bool {
	outcome, _ := Classify(err)
	return outcome == OutcomeRejected
}
