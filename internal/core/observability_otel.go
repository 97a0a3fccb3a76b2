package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "calendarcore/internal/core"

// OTelTracer starts an OpenTelemetry span per service operation.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer uses provider, or the global provider when nil.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer(tracerName)}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("calendarcore.operation", operation)),
	)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// Annotate implements MeetingSpan.
func (s otelSpan) Annotate(id MeetingID, caller Identity) {
	s.span.SetAttributes(
		attribute.Int64("calendarcore.meeting_id", int64(id)),
		attribute.String("calendarcore.caller", string(caller)),
	)
}

func (s otelSpan) End(err error) {
	outcome, reason := Classify(err)
	s.span.SetAttributes(attribute.String("calendarcore.outcome", string(outcome)))
	if reason != "" {
		s.span.SetAttributes(attribute.String("calendarcore.reason", reason))
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
