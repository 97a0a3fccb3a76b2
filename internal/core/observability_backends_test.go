package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg, "calendarcore")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	ctx := context.Background()
	if _, _, err := svc.CreateMeeting(ctx, "0xorg", MeetingDraft{Participants: []Identity{"0xa"}, StartTime: 1, EndTime: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.CancelMeeting(ctx, "0xorg", 99); err == nil {
		t.Fatalf("expected not found")
	}
	rec.Observe(ctx, "", true, time.Second)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues(OpCreateMeeting, "success")); got != 1 {
		t.Fatalf("expected one successful create, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues(OpCancelMeeting, "error")); got != 1 {
		t.Fatalf("expected one failed cancel, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.latency); n != 2 {
		t.Fatalf("expected latency series for two operations, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg, "calendarcore"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestOTelTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracer := NewOTelTracer(provider)
	svc := NewInMemoryService(nil, WithTracer(tracer))
	ctx := context.Background()
	if _, _, err := svc.CreateMeeting(ctx, "0xorg", MeetingDraft{Participants: []Identity{"0xa"}, StartTime: 1, EndTime: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CheckAvailability(ctx, "0xa", 0, 5, 5); err == nil {
		t.Fatalf("expected range error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != OpCreateMeeting || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected create span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != OpCheckAvailability || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected availability span %s %v", spans[1].Name(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("expected recorded error event")
	}
	var found bool
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "calendarcore.operation" && attr.Value.AsString() == OpCreateMeeting {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected operation attribute, got %v", spans[0].Attributes())
	}
	attrs := make(map[string]string)
	for _, attr := range spans[0].Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	if attrs["calendarcore.meeting_id"] != "1" || attrs["calendarcore.caller"] != "0xorg" || attrs["calendarcore.outcome"] != "ok" {
		t.Fatalf("expected meeting annotations, got %v", attrs)
	}
	for _, attr := range spans[1].Attributes() {
		if string(attr.Key) == "calendarcore.meeting_id" {
			t.Fatalf("availability checks resolve no meeting, got %v", attr.Value.Emit())
		}
	}
}

func TestOTelTracerDefaultsToGlobalProvider(t *testing.T) {
	_, span := NewOTelTracer(nil).Start(context.Background(), "noop")
	span.End(errors.New("ignored"))
}
