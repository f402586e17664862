// Package observe provides application-wide observability primitives for
// orbitvoice: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to Prometheus so they can be scraped via /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all orbitvoice metrics.
const meterName = "github.com/orbitlearn/orbitvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TTSDuration tracks server speech synthesis fetch latency.
	TTSDuration metric.Float64Histogram

	// STTDuration tracks server transcription latency.
	STTDuration metric.Float64Histogram

	// BackendDuration tracks Orbit backend API latency. Use with attribute:
	//   attribute.String("endpoint", ...)
	BackendDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// CacheLookups counts audio cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// CacheEvictions counts clips dropped from the audio cache.
	CacheEvictions metric.Int64Counter

	// Commands counts voice command outcomes. Use with attributes:
	//   attribute.String("outcome", "recognized"|"failed"|"misrecognition"), attribute.String("action", ...)
	Commands metric.Int64Counter

	// StateTransitions counts teaching state machine transitions. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// Answers counts submitted question answers. Use with attribute:
	//   attribute.Bool("correct", ...)
	Answers metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutoring sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound speech and backend calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TTSDuration, err = m.Float64Histogram("orbitvoice.tts.duration",
		metric.WithDescription("Latency of server speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("orbitvoice.stt.duration",
		metric.WithDescription("Latency of server speech transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("orbitvoice.backend.duration",
		metric.WithDescription("Latency of Orbit backend API calls by endpoint."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("orbitvoice.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("orbitvoice.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("orbitvoice.audio_cache.lookups",
		metric.WithDescription("Audio cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("orbitvoice.audio_cache.evictions",
		metric.WithDescription("Clips evicted from the audio cache."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("orbitvoice.commands",
		metric.WithDescription("Voice commands by outcome and action."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("orbitvoice.state.transitions",
		metric.WithDescription("Teaching state machine transitions."),
	); err != nil {
		return nil, err
	}
	if met.Answers, err = m.Int64Counter("orbitvoice.answers",
		metric.WithDescription("Submitted question answers by correctness."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("orbitvoice.active_sessions",
		metric.WithDescription("Number of live tutoring sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("orbitvoice.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCacheLookup records an audio cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCommand records the outcome of routing one utterance.
func (m *Metrics) RecordCommand(ctx context.Context, outcome, action string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("action", action),
		),
	)
}

// RecordTransition records a teaching state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordAnswer records a submitted answer.
func (m *Metrics) RecordAnswer(ctx context.Context, correct bool) {
	m.Answers.Add(ctx, 1, metric.WithAttributes(attribute.Bool("correct", correct)))
}
