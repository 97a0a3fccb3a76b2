package core

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelSink forwards notifications to a buffered channel without blocking
// the committing transaction. Notifications that do not fit are dropped and
// counted.
type ChannelSink struct {
	ch      chan Notification
	dropped atomic.Uint64
}

// NewChannelSink creates a sink with the given buffer size (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Notification, buffer)}
}

// Publish implements NotificationSink.
func (c *ChannelSink) Publish(_ context.Context, n Notification) {
	select {
	case c.ch <- n:
	default:
		c.dropped.Add(1)
	}
}

// C returns the receive side of the channel.
func (c *ChannelSink) C() <-chan Notification { return c.ch }

// Dropped reports how many notifications were discarded on a full buffer.
func (c *ChannelSink) Dropped() uint64 { return c.dropped.Load() }

// LoggingSink writes every notification to a Logger at info level.
type LoggingSink struct {
	logger Logger
}

// NewLoggingSink wraps logger; nil discards.
func NewLoggingSink(logger Logger) *LoggingSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LoggingSink{logger: logger}
}

// Publish implements NotificationSink.
func (l *LoggingSink) Publish(_ context.Context, n Notification) {
	attrs := []any{"id", n.ID, "kind", string(n.Kind), "meeting_id", uint64(n.MeetingID)}
	switch {
	case n.Organizer != "":
		attrs = append(attrs, "organizer", string(n.Organizer))
	case n.Slot != nil:
		attrs = append(attrs, "date", n.Slot.Date, "start_time", n.Slot.Start, "end_time", n.Slot.End)
	case n.Participant != "":
		attrs = append(attrs, "participant", string(n.Participant))
	}
	l.logger.Info("meeting notification", attrs...)
}

// MetricsSink counts published notifications per kind.
type MetricsSink struct {
	published *prometheus.CounterVec
}

// NewMetricsSink registers the notification counter with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetricsSink(reg prometheus.Registerer, namespace string) (*MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "published_total",
		Help:      "Meeting notifications published after commit, by kind.",
	}, []string{"kind"})
	if err := reg.Register(counter); err != nil {
		return nil, err
	}
	return &MetricsSink{published: counter}, nil
}

// Publish implements NotificationSink.
func (m *MetricsSink) Publish(_ context.Context, n Notification) {
	m.published.WithLabelValues(string(n.Kind)).Inc()
}
