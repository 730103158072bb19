// Package observe provides the observability primitives shared by the tutor:
// OpenTelemetry metrics and tracing, trace-aware structured logging and HTTP
// middleware for the diagnostics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] returns a package-level
// instance bound to the global meter provider; tests should build their own
// with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every Nova metric.
const meterName = "github.com/MrWong99/nova"

// Metrics holds the metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// ListenDuration tracks how long one capture took, from the start of
	// listening to the final transcript.
	ListenDuration metric.Float64Histogram

	// LLMDuration tracks grading latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks reply synthesis latency.
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// Utterances counts graded utterances by outcome.
	Utterances metric.Int64Counter

	// PointsChange sums applied score deltas before clamping.
	PointsChange metric.Int64UpDownCounter

	// CaptureFailures counts capture cycles that ended without a transcript,
	// by reason.
	CaptureFailures metric.Int64Counter

	// SessionState reports the current session phase (0 idle, 1 listening,
	// 2 analyzing, 3 speaking).
	SessionState metric.Int64Gauge

	// HTTPRequestDuration tracks diagnostics server latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for network
// model calls and spoken utterances.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 15,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ListenDuration, err = m.Float64Histogram("nova.listen.duration",
		metric.WithDescription("Duration of one microphone capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("nova.llm.duration",
		metric.WithDescription("Latency of utterance grading."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("nova.tts.duration",
		metric.WithDescription("Latency of reply synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("nova.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("nova.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("nova.utterances",
		metric.WithDescription("Graded utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PointsChange, err = m.Int64UpDownCounter("nova.points.change",
		metric.WithDescription("Sum of score deltas applied to the learner."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFailures, err = m.Int64Counter("nova.capture.failures",
		metric.WithDescription("Capture cycles that ended without a transcript, by reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionState, err = m.Int64Gauge("nova.session.state",
		metric.WithDescription("Current session phase: 0 idle, 1 listening, 2 analyzing, 3 speaking."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("nova.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordProviderCall records the outcome and latency of one provider call on
// h, counting a request and, when err is non-nil, an error.
func (m *Metrics) RecordProviderCall(ctx context.Context, h metric.Float64Histogram, provider, kind string, start time.Time, err error) {
	h.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}

// RecordUtterance counts one graded utterance and the score delta it caused.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, delta int) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.PointsChange.Add(ctx, int64(delta))
}

// RecordCaptureFailure counts a capture cycle that produced no transcript.
func (m *Metrics) RecordCaptureFailure(ctx context.Context, reason string) {
	m.CaptureFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
