package core

import (
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome classifies how a service operation ended.
type Outcome string

// Operation outcomes. A rejection is a caller error carrying a domain code or
// a blocking rule; anything else that fails is an infrastructure failure.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// ReasonRuleViolation is the rejection reason reported for transactions
// blocked by a rule rather than by a guard check.
const ReasonRuleViolation = "rule_violation"

// Classify maps an operation error to its outcome and, for rejections, the
// reason: the domain error code or ReasonRuleViolation.
func Classify(err error) (Outcome, string) {
	if err == nil {
		return OutcomeOK, ""
	}
	if code := domain.CodeOf(err); code != "" {
		return OutcomeRejected, string(code)
	}
	var rv RuleViolationError
	if errors.As(err, &rv) {
		return OutcomeRejected, ReasonRuleViolation
	}
	return OutcomeFailed, ""
}

var ledgerStatsSeq atomic.Uint64

// OperationStats aggregates one operation's outcomes.
type OperationStats struct {
	Calls    int64            `json:"calls"`
	OK       int64            `json:"ok"`
	Failed   int64            `json:"failed"`
	Rejected map[string]int64 `json:"rejected,omitempty"`
	TotalMS  float64          `json:"total_ms"`
	MaxMS    float64          `json:"max_ms"`
}

// LedgerStatsSnapshot is a point-in-time copy of LedgerStats.
type LedgerStatsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	TakenAt    time.Time                 `json:"taken_at"`
}

// Rejections returns how often op was rejected for reason.
func (s LedgerStatsSnapshot) Rejections(op, reason string) int64 {
	return s.Operations[op].Rejected[reason]
}

// LedgerStats publishes per-operation outcome counters under one expvar name,
// with rejections broken down by domain error code so that, for example,
// attempts by non-organizers are told apart from edits to cancelled meetings.
type LedgerStats struct {
	name string
	now  func() time.Time

	mu  sync.Mutex
	ops map[string]*OperationStats
}

var (
	_ MetricsRecorder = (*LedgerStats)(nil)
	_ OutcomeRecorder = (*LedgerStats)(nil)
)

// NewLedgerStats publishes a recorder under name, or under a generated
// calendarcore_ledger_N name when empty. Publishing an existing expvar name
// panics.
func NewLedgerStats(name string) *LedgerStats {
	if name == "" {
		name = fmt.Sprintf("calendarcore_ledger_%d", ledgerStatsSeq.Add(1))
	}
	st := &LedgerStats{
		name: name,
		now:  func() time.Time { return time.Now().UTC() },
		ops:  make(map[string]*OperationStats),
	}
	expvar.Publish(name, expvar.Func(func() any { return st.Snapshot() }))
	return st
}

// Name returns the expvar name.
func (st *LedgerStats) Name() string { return st.name }

// Observe implements MetricsRecorder for callers that only know whether the
// operation succeeded. Failures counted this way are not classified.
func (st *LedgerStats) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	outcome := OutcomeOK
	if !success {
		outcome = OutcomeFailed
	}
	st.add(operation, outcome, "", duration)
}

// ObserveOutcome implements OutcomeRecorder.
func (st *LedgerStats) ObserveOutcome(_ context.Context, operation string, err error, duration time.Duration) {
	outcome, reason := Classify(err)
	st.add(operation, outcome, reason, duration)
}

func (st *LedgerStats) add(operation string, outcome Outcome, reason string, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	st.mu.Lock()
	defer st.mu.Unlock()
	op, ok := st.ops[operation]
	if !ok {
		op = &OperationStats{}
		st.ops[operation] = op
	}
	op.Calls++
	op.TotalMS += ms
	if ms > op.MaxMS {
		op.MaxMS = ms
	}
	switch outcome {
	case OutcomeOK:
		op.OK++
	case OutcomeRejected:
		if op.Rejected == nil {
			op.Rejected = make(map[string]int64)
		}
		op.Rejected[reason]++
	default:
		op.Failed++
	}
}

// Snapshot copies the current counters.
func (st *LedgerStats) Snapshot() LedgerStatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	ops := make(map[string]OperationStats, len(st.ops))
	for name, op := range st.ops {
		cp := *op
		if op.Rejected != nil {
			cp.Rejected = make(map[string]int64, len(op.Rejected))
			for reason, n := range op.Rejected {
				cp.Rejected[reason] = n
			}
		}
		ops[name] = cp
	}
	return LedgerStatsSnapshot{Operations: ops, TakenAt: st.now()}
}

// SpanRecord is one finished operation as written by SpanJournal.
type SpanRecord struct {
	Operation string    `json:"operation"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	MeetingID MeetingID `json:"meeting_id,omitempty"`
	Caller    Identity  `json:"caller,omitempty"`
	Error     string    `json:"error,omitempty"`
	Start     time.Time `json:"start"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// SpanJournal is a Tracer that writes one JSON line per finished operation
// and keeps the records in memory.
type SpanJournal struct {
	mu      sync.Mutex
	records []SpanRecord
	enc     *json.Encoder
}

var _ Tracer = (*SpanJournal)(nil)

// NewSpanJournal returns a journal writing to w. A nil w only keeps records.
func NewSpanJournal(w io.Writer) *SpanJournal {
	j := &SpanJournal{}
	if w != nil {
		j.enc = json.NewEncoder(w)
	}
	return j
}

// Records returns a copy of every finished span.
func (j *SpanJournal) Records() []SpanRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]SpanRecord(nil), j.records...)
}

// Start implements Tracer.
func (j *SpanJournal) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &journalSpan{journal: j, rec: SpanRecord{Operation: operation, Start: time.Now().UTC()}}
}

type journalSpan struct {
	journal *SpanJournal
	rec     SpanRecord
}

// Annotate implements MeetingSpan.
func (s *journalSpan) Annotate(id MeetingID, caller Identity) {
	s.rec.MeetingID = id
	s.rec.Caller = caller
}

func (s *journalSpan) End(err error) {
	rec := s.rec
	rec.Outcome, rec.Reason = Classify(err)
	if err != nil {
		rec.Error = err.Error()
	}
	rec.ElapsedMS = float64(time.Since(rec.Start)) / float64(time.Millisecond)

	j := s.journal
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	if j.enc != nil {
		_ = j.enc.Encode(rec)
	}
}
