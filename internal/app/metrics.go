package app

import (
	"context"
	"sync"

	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/tutor"
)

var _ tutor.Sink = (*MetricsSink)(nil)

// MetricsSink turns controller events into OTel measurements.
type MetricsSink struct {
	metrics *observe.Metrics

	mu   sync.Mutex
	last tutor.Snapshot
}

// NewMetricsSink records into m.
func NewMetricsSink(m *observe.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// StateChanged reports the session phase and counts failed captures.
func (s *MetricsSink) StateChanged(snap tutor.Snapshot) {
	s.mu.Lock()
	prev := s.last
	s.last = snap
	s.mu.Unlock()

	ctx := context.Background()
	s.metrics.SessionState.Record(ctx, int64(snap.State))

	if reason := captureFailure(prev, snap); reason != "" {
		s.metrics.RecordCaptureFailure(ctx, reason)
	}
}

// Scored counts the graded utterance.
func (s *MetricsSink) Scored(v tutor.Verdict) {
	s.metrics.RecordUtterance(context.Background(), string(v.Outcome), v.Delta)
}

// captureFailure names why a cycle ended without a transcript, or "" if it
// did not fail. A user stop leaves no feedback and is not a failure.
func captureFailure(prev, next tutor.Snapshot) string {
	if next.State != tutor.Idle || next.Transcript != "" {
		return ""
	}
	if next.Error != tutor.ErrorNone && prev.Error == tutor.ErrorNone {
		return next.Error.String()
	}
	if prev.State == tutor.Listening && next.Error == tutor.ErrorNone && next.Feedback != "" {
		return "no_speech"
	}
	return ""
}
