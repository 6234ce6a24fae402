// Package observe provides application-wide observability primitives for
// voxkit: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxkit metrics.
const meterName = "github.com/voxkit/voxkit"

// Metrics holds all OpenTelemetry metric instruments for the recognition
// pipeline. All fields are safe for concurrent use; the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesProcessed counts audio frames through the VAD. Use with attribute:
	//   attribute.Bool("voice", ...)
	FramesProcessed metric.Int64Counter

	// Endpoints counts detected utterance endpoints. Use with attribute:
	//   attribute.String("type", ...)
	Endpoints metric.Int64Counter

	// EngineErrors counts recognition engine failures. Use with attribute:
	//   attribute.String("stage", ...) with "push", "partial" or "final"
	EngineErrors metric.Int64Counter

	// FinalizesDropped counts utterances discarded because the finalize queue
	// was full.
	FinalizesDropped metric.Int64Counter

	// --- Histograms ---

	// VADConfidence tracks the per-frame voice confidence distribution.
	VADConfidence metric.Float64Histogram

	// UtteranceDuration tracks detected utterance lengths.
	UtteranceDuration metric.Float64Histogram

	// FinalizeDuration tracks engine finalize latency.
	FinalizeDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both finalize latencies and utterance durations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// confidenceBuckets covers the [0,1] confidence range.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("voxkit.audio.frames",
		metric.WithDescription("Total audio frames processed by the VAD, by voice classification."),
	); err != nil {
		return nil, err
	}
	if met.Endpoints, err = m.Int64Counter("voxkit.endpoint.triggers",
		metric.WithDescription("Total utterance endpoints by trigger type."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("voxkit.engine.errors",
		metric.WithDescription("Total recognition engine failures by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.FinalizesDropped, err = m.Int64Counter("voxkit.finalize.dropped",
		metric.WithDescription("Utterances discarded because the finalize queue was full."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.VADConfidence, err = m.Float64Histogram("voxkit.vad.confidence",
		metric.WithDescription("Per-frame voice confidence distribution."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("voxkit.utterance.duration",
		metric.WithDescription("Detected utterance lengths."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("voxkit.finalize.duration",
		metric.WithDescription("Engine finalize latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxkit.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxkit.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one processed audio frame with its classification and
// confidence.
func (m *Metrics) RecordFrame(ctx context.Context, isVoice bool, confidence float64) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("voice", isVoice)),
	)
	m.VADConfidence.Record(ctx, confidence)
}

// RecordEndpoint records one utterance endpoint with its trigger type and the
// utterance duration in seconds.
func (m *Metrics) RecordEndpoint(ctx context.Context, endpointType string, durationSec float64) {
	m.Endpoints.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", endpointType)),
	)
	m.UtteranceDuration.Record(ctx, durationSec)
}

// RecordEngineError records one recognition engine failure for the given
// pipeline stage.
func (m *Metrics) RecordEngineError(ctx context.Context, stage string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
