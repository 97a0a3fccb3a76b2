// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments and as the transactional engine
// underneath the durable backends.
package memory

import (
	"calendarcore/pkg/domain"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Identity aliases domain.Identity.
	Identity = domain.Identity
	// MeetingID aliases domain.MeetingID.
	MeetingID = domain.MeetingID
	// Meeting aliases domain.Meeting.
	Meeting = domain.Meeting
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// Notification aliases domain.Notification.
	Notification = domain.Notification
)

type memoryState struct {
	meetings map[MeetingID]Meeting
	index    map[Identity][]MeetingID
}

func newMemoryState() memoryState {
	return memoryState{
		meetings: make(map[MeetingID]Meeting),
		index:    make(map[Identity][]MeetingID),
	}
}

// Option customises a Store at construction.
type Option func(*Store)

// WithNotificationSink sets the sink that receives notifications after each
// successful commit.
func WithNotificationSink(sink domain.NotificationSink) Option {
	return func(s *Store) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithNotificationIDs overrides the generator used to stamp notification ids.
func WithNotificationIDs(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newEventID = gen
		}
	}
}

// CommitHook receives the full post-commit state while the writer lock is
// held. A non-nil error reverts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// WithCommitHook registers a hook run after every merge and state restore,
// before notifications are published. Durable backends persist from it.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.commitHook = hook
	}
}

// Store provides an in-memory transactional store for meetings. All mutations
// are serialized by a single writer lock; reads run concurrently with each
// other under the read lock.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	ids        *domain.IDAllocator
	engine     *RulesEngine
	sink       domain.NotificationSink
	nowFn      func() time.Time
	newEventID func() string
	commitHook CommitHook

	outboxMu sync.Mutex
	outbox   []Notification
	draining bool
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:      newMemoryState(),
		ids:        domain.NewIDAllocator(0),
		engine:     engine,
		sink:       domain.NopSink{},
		nowFn:      func() time.Time { return time.Now().UTC() },
		newEventID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// LastMeetingID returns the most recently allocated meeting identifier.
func (s *Store) LastMeetingID() MeetingID {
	return s.ids.Last()
}

// RunInTransaction executes fn against a copy-on-write overlay of the
// committed state. The overlay is merged only when fn and every blocking rule
// succeed; notifications recorded by fn are then queued in commit order and
// published after the writer lock is released.
//
// Sinks may read the store and may start further transactions. A transaction
// started from inside a sink commits immediately; its notifications are
// published once the current batch has been delivered.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	res, err := s.apply(ctx, fn)
	if err != nil {
		return res, err
	}
	s.drain(ctx)
	return res, nil
}

// apply runs fn under the writer lock and, on success, appends the pending
// notifications to the outbox before the lock is released. Any identifier
// allocated by a failed attempt is released again.
func (s *Store) apply(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	floor := s.ids.Last()
	tx := &transaction{
		store:    s,
		base:     &s.state,
		dirty:    make(map[MeetingID]Meeting),
		appended: make(map[Identity][]MeetingID),
		now:      s.nowFn(),
	}
	if err := fn(tx); err != nil {
		s.ids.Rewind(floor)
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		res, err := s.engine.Evaluate(ctx, txView{tx: tx}, tx.changes)
		if err != nil {
			s.ids.Rewind(floor)
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			s.ids.Rewind(floor)
			return res, domain.RuleViolationError{Result: res}
		}
	}

	undo := s.merge(tx)
	if err := s.runCommitHook(ctx); err != nil {
		undo()
		s.ids.Rewind(floor)
		return result, err
	}
	if len(tx.pending) > 0 {
		s.outboxMu.Lock()
		s.outbox = append(s.outbox, tx.pending...)
		s.outboxMu.Unlock()
	}
	return result, nil
}

// drain publishes queued notifications until the outbox is empty. Only one
// goroutine drains at a time; callers arriving while a drain is running leave
// their notifications to it. No store lock is held while a sink runs.
func (s *Store) drain(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.outboxMu.Lock()
	if s.draining {
		s.outboxMu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		batch := s.outbox
		s.outbox = nil
		s.outboxMu.Unlock()
		for _, n := range batch {
			s.sink.Publish(ctx, n)
		}
		s.outboxMu.Lock()
	}
	s.draining = false
	s.outboxMu.Unlock()
}

// merge folds the overlay into committed state and returns a func restoring
// the previous state. Callers hold the writer lock.
func (s *Store) merge(tx *transaction) func() {
	prevMeetings := make(map[MeetingID]*Meeting, len(tx.dirty))
	for id, m := range tx.dirty {
		if old, ok := s.state.meetings[id]; ok {
			prevMeetings[id] = &old
		} else {
			prevMeetings[id] = nil
		}
		s.state.meetings[id] = m
	}
	prevLens := make(map[Identity]int, len(tx.appended))
	for who, ids := range tx.appended {
		prevLens[who] = len(s.state.index[who])
		s.state.index[who] = append(s.state.index[who], ids...)
	}
	return func() {
		for id, old := range prevMeetings {
			if old == nil {
				delete(s.state.meetings, id)
				continue
			}
			s.state.meetings[id] = *old
		}
		for who, n := range prevLens {
			if n == 0 {
				delete(s.state.index, who)
				continue
			}
			s.state.index[who] = s.state.index[who][:n]
		}
	}
}

func (s *Store) runCommitHook(ctx context.Context) error {
	if s.commitHook == nil {
		return nil
	}
	return s.commitHook(ctx, snapshotFromMemoryState(s.state, s.ids.Last()))
}

// View executes fn against the committed state under the read lock. The view
// must not be retained after fn returns.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(stateView{state: &s.state})
}

// Read helpers ---------------------------------------------------------------

// GetMeeting retrieves a meeting by ID from committed state.
func (s *Store) GetMeeting(id MeetingID) (Meeting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.meetings[id]
	if !ok {
		return Meeting{}, false
	}
	return m.Clone(), true
}

// MeetingsFor returns every meeting who organizes or participates in, in
// identity index order. Cancelled meetings are included.
func (s *Store) MeetingsFor(who Identity) []Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateView{state: &s.state}.MeetingsFor(who)
}

// ListMeetings returns all meetings ordered by identifier.
func (s *Store) ListMeetings() []Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateView{state: &s.state}.ListMeetings()
}

// stateView reads committed state.
type stateView struct {
	state *memoryState
}

func (v stateView) FindMeeting(id MeetingID) (Meeting, bool) {
	m, ok := v.state.meetings[id]
	if !ok {
		return Meeting{}, false
	}
	return m.Clone(), true
}

func (v stateView) MeetingsFor(who Identity) []Meeting {
	ids := v.state.index[who]
	out := make([]Meeting, 0, len(ids))
	for _, id := range ids {
		if m, ok := v.state.meetings[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

func (v stateView) ListMeetings() []Meeting {
	return sortedMeetings(v.state.meetings, nil)
}

func sortedMeetings(base, overlay map[MeetingID]Meeting) []Meeting {
	out := make([]Meeting, 0, len(base)+len(overlay))
	for id, m := range base {
		if _, shadowed := overlay[id]; shadowed {
			continue
		}
		out = append(out, m.Clone())
	}
	for _, m := range overlay {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
