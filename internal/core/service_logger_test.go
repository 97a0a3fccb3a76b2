package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf("%s:%s %v", level, msg, args))
}

func (c *captureLogger) Debug(msg string, args ...any) { c.record("d", msg, args...) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record("i", msg, args...) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record("w", msg, args...) }
func (c *captureLogger) Error(msg string, args ...any) { c.record("e", msg, args...) }

func (c *captureLogger) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestNoopLogger(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info", "key", "value")
	logger.Warn("warn", "key", "value")
	logger.Error("error", "key", "value")
}

func TestServiceLogsByOutcome(t *testing.T) {
	ctx := context.Background()
	log := &captureLogger{}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithLogger(log))

	m, _, err := svc.CreateMeeting(ctx, "0xorg", MeetingDraft{Participants: []Identity{"0xa"}, StartTime: 1, EndTime: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if log.count("i:operation committed") != 1 {
		t.Fatalf("expected info log for committed create, got %v", log.calls)
	}

	if _, _, err := svc.CancelMeeting(ctx, "0xother", m.ID); err == nil {
		t.Fatalf("expected authorization failure")
	}
	if log.count("d:operation rejected") != 1 || log.count("e:") != 0 {
		t.Fatalf("caller errors must log at debug, got %v", log.calls)
	}

	if _, err := svc.MeetingsByIdentity(ctx, "0xa"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if log.count("d:operation served") != 1 {
		t.Fatalf("reads must log at debug, got %v", log.calls)
	}
}

func TestServiceLogsInfrastructureFailuresAsErrors(t *testing.T) {
	log := &captureLogger{}
	store := memory.NewStore(nil, memory.WithCommitHook(func(context.Context, memory.Snapshot) error {
		return errors.New("disk full")
	}))
	svc := NewService(store, WithLogger(log))
	_, _, err := svc.CreateMeeting(context.Background(), "0xorg", MeetingDraft{Participants: []Identity{"0xa"}, StartTime: 1, EndTime: 2})
	if err == nil || domain.CodeOf(err) != "" {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if log.count("e:operation failed") != 1 {
		t.Fatalf("expected error log entry, got %v", log.calls)
	}
}

func TestWithLoggerNilFallsBackToNoop(t *testing.T) {
	svc := NewInMemoryService(nil, WithLogger(nil))
	if _, ok := svc.logger.(noopLogger); !ok {
		t.Fatalf("expected noop logger, got %T", svc.logger)
	}
}

func TestNewLoggerFormatsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "json", &buf)
	if err != nil {
		t.Fatalf("json logger: %v", err)
	}
	logger.Debug("hello", "meeting_id", 7)
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json record, got %q", buf.String())
	}
	if record["msg"] != "hello" || record["meeting_id"] != float64(7) {
		t.Fatalf("unexpected record %v", record)
	}

	buf.Reset()
	logger, err = NewLogger("warn", "text", &buf)
	if err != nil {
		t.Fatalf("text logger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("unexpected text output %q", buf.String())
	}

	if _, err := NewLogger("loud", "text", nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := NewLogger("info", "xml", nil); err == nil {
		t.Fatalf("expected format error")
	}
}
