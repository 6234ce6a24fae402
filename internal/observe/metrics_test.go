package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, true, 0.85)
	m.RecordFrame(ctx, true, 0.72)
	m.RecordFrame(ctx, false, 0.1)

	rm := collect(t, reader)

	met := findMetric(rm, "voxkit.audio.frames")
	if met == nil {
		t.Fatal("frame counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("frame metric is not a sum")
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "voice" && kv.Value.AsBool() {
				if dp.Value != 2 {
					t.Errorf("voice frame count = %d, want 2", dp.Value)
				}
			}
		}
	}

	conf := findMetric(rm, "voxkit.vad.confidence")
	if conf == nil {
		t.Fatal("confidence histogram not found")
	}
	hist, ok := conf.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("confidence metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("confidence sample count = %d, want 3", got)
	}
}

func TestRecordEndpoint(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEndpoint(ctx, "silence", 1.2)
	m.RecordEndpoint(ctx, "silence", 2.4)
	m.RecordEndpoint(ctx, "manual", 0.5)

	rm := collect(t, reader)
	met := findMetric(rm, "voxkit.endpoint.triggers")
	if met == nil {
		t.Fatal("endpoint counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("endpoint metric is not a sum")
	}
	var foundSilence bool
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "type" && kv.Value.AsString() == "silence" {
				foundSilence = true
				if dp.Value != 2 {
					t.Errorf("silence endpoint count = %d, want 2", dp.Value)
				}
			}
		}
	}
	if !foundSilence {
		t.Fatal("data point with type=silence not found")
	}

	dur := findMetric(rm, "voxkit.utterance.duration")
	if dur == nil {
		t.Fatal("utterance duration histogram not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	if got := hist.DataPoints[0].Count; got != 3 {
		t.Errorf("duration sample count = %d, want 3", got)
	}
}

func TestRecordEngineError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEngineError(ctx, "final")

	rm := collect(t, reader)
	met := findMetric(rm, "voxkit.engine.errors")
	if met == nil {
		t.Fatal("engine error counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("engine error metric is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("engine error count = %+v, want one point of value 1", sum.DataPoints)
	}
}

func TestFinalizeInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FinalizeDuration.Record(ctx, 0.35)
	m.FinalizesDropped.Add(ctx, 1)

	rm := collect(t, reader)

	dur := findMetric(rm, "voxkit.finalize.duration")
	if dur == nil {
		t.Fatal("finalize duration histogram not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || hist.DataPoints[0].Count != 1 {
		t.Error("finalize duration not recorded")
	}

	dropped := findMetric(rm, "voxkit.finalize.dropped")
	if dropped == nil {
		t.Fatal("dropped counter not found")
	}
	sum, ok := dropped.Data.(metricdata.Sum[int64])
	if !ok || sum.DataPoints[0].Value != 1 {
		t.Error("dropped finalize not counted")
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxkit.active_sessions")
	if met == nil {
		t.Fatal("active sessions gauge not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("gauge is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "voxkit.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
