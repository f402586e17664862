package observe

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// voiceMetrics returns Metrics on a private provider with a reader the test
// can drain.
func voiceMetrics(t *testing.T) (*Metrics, func() metricdata.ResourceMetrics) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, func() metricdata.ResourceMetrics {
		t.Helper()
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		return rm
	}
}

func lookup(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == name {
				return met, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// counts flattens an int64 sum into "k=v,k=v" attribute sets.
func counts(t *testing.T, rm metricdata.ResourceMetrics, name string) map[string]int64 {
	t.Helper()
	met, ok := lookup(rm, name)
	if !ok {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	enc := attribute.DefaultEncoder()
	out := make(map[string]int64, len(sum.DataPoints))
	for _, dp := range sum.DataPoints {
		out[dp.Attributes.Encoded(enc)] += dp.Value
	}
	return out
}

func TestMetrics_LessonSession(t *testing.T) {
	t.Parallel()
	m, collect := voiceMetrics(t)
	ctx := context.Background()

	// One short lesson: start, a block, a question answered twice, one
	// unrecognised utterance, then quit.
	m.ActiveSessions.Add(ctx, 1)
	m.RecordTransition(ctx, "idle", "teaching")
	m.RecordCommand(ctx, "recognized", "next_block")
	m.RecordTransition(ctx, "teaching", "question")
	m.RecordAnswer(ctx, false)
	m.RecordAnswer(ctx, true)
	m.RecordTransition(ctx, "question", "teaching")
	m.RecordCommand(ctx, "misrecognition", "")
	m.RecordCommand(ctx, "recognized", "next_block")
	m.RecordCommand(ctx, "recognized", "quit")
	m.RecordTransition(ctx, "teaching", "idle")
	m.ActiveSessions.Add(ctx, -1)

	rm := collect()

	tests := []struct {
		metric string
		want   map[string]int64
	}{
		{"orbitvoice.commands", map[string]int64{
			"action=next_block,outcome=recognized": 2,
			"action=quit,outcome=recognized":       1,
			"action=,outcome=misrecognition":       1,
		}},
		{"orbitvoice.state.transitions", map[string]int64{
			"from=idle,to=teaching":     1,
			"from=teaching,to=question": 1,
			"from=question,to=teaching": 1,
			"from=teaching,to=idle":     1,
		}},
		{"orbitvoice.answers", map[string]int64{
			"correct=false": 1,
			"correct=true":  1,
		}},
		{"orbitvoice.active_sessions", map[string]int64{"": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got := counts(t, rm, tt.metric)
			if len(got) != len(tt.want) {
				t.Errorf("attribute sets = %v, want %v", got, tt.want)
			}
			for set, want := range tt.want {
				if got[set] != want {
					t.Errorf("%s{%s} = %d, want %d", tt.metric, set, got[set], want)
				}
			}
		})
	}
}

func TestMetrics_SpeechProviders(t *testing.T) {
	t.Parallel()
	m, collect := voiceMetrics(t)
	ctx := context.Background()

	// coqui times out twice and the chain falls through to openai. The
	// Orbit backend answers twice.
	m.RecordProviderRequest(ctx, "coqui", "tts", "error")
	m.RecordProviderError(ctx, "coqui", "tts")
	m.RecordProviderRequest(ctx, "openai", "tts", "ok")
	m.RecordProviderRequest(ctx, "coqui", "tts", "error")
	m.RecordProviderError(ctx, "coqui", "tts")
	m.RecordProviderRequest(ctx, "openai", "tts", "ok")
	m.RecordProviderRequest(ctx, "orbit", "backend", "200")
	m.RecordProviderRequest(ctx, "orbit", "backend", "404")

	rm := collect()

	reqs := counts(t, rm, "orbitvoice.provider.requests")
	for set, want := range map[string]int64{
		"kind=tts,provider=coqui,status=error":   2,
		"kind=tts,provider=openai,status=ok":     2,
		"kind=backend,provider=orbit,status=200": 1,
		"kind=backend,provider=orbit,status=404": 1,
	} {
		if reqs[set] != want {
			t.Errorf("requests{%s} = %d, want %d", set, reqs[set], want)
		}
	}
	errs := counts(t, rm, "orbitvoice.provider.errors")
	if len(errs) != 1 || errs["kind=tts,provider=coqui"] != 2 {
		t.Errorf("errors = %v, want only coqui tts = 2", errs)
	}
}

func TestMetrics_AudioCache(t *testing.T) {
	t.Parallel()
	m, collect := voiceMetrics(t)
	ctx := context.Background()

	// Replaying a block: first pass misses on every sentence, the replay hits.
	for range 3 {
		m.RecordCacheLookup(ctx, false)
	}
	for range 3 {
		m.RecordCacheLookup(ctx, true)
	}
	m.CacheEvictions.Add(ctx, 1)

	rm := collect()
	lookups := counts(t, rm, "orbitvoice.audio_cache.lookups")
	if lookups["result=hit"] != 3 || lookups["result=miss"] != 3 {
		t.Errorf("lookups = %v, want 3 hits and 3 misses", lookups)
	}
	if ev := counts(t, rm, "orbitvoice.audio_cache.evictions"); ev[""] != 1 {
		t.Errorf("evictions = %v, want 1", ev)
	}
}

func TestMetrics_LatencyBuckets(t *testing.T) {
	t.Parallel()
	m, collect := voiceMetrics(t)
	ctx := context.Background()

	m.TTSDuration.Record(ctx, 0.3)
	m.TTSDuration.Record(ctx, 4)
	m.STTDuration.Record(ctx, 1.2)
	m.BackendDuration.Record(ctx, 0.04, metric.WithAttributes(Attr("endpoint", "teaching_content")))
	m.BackendDuration.Record(ctx, 0.02, metric.WithAttributes(Attr("endpoint", "curriculum")))
	m.HTTPRequestDuration.Record(ctx, 0.001, metric.WithAttributes(
		Attr("method", "GET"),
		Attr("path", "/healthz"),
	))

	rm := collect()

	tests := []struct {
		metric string
		points int
		total  uint64
		bounds []float64
	}{
		{"orbitvoice.tts.duration", 1, 2, latencyBuckets},
		{"orbitvoice.stt.duration", 1, 1, latencyBuckets},
		{"orbitvoice.backend.duration", 2, 2, latencyBuckets},
		{"orbitvoice.http.request.duration", 1, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			met, ok := lookup(rm, tt.metric)
			if !ok {
				t.Fatal("not recorded")
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("data is %T, want Histogram[float64]", met.Data)
			}
			if len(hist.DataPoints) != tt.points {
				t.Fatalf("data points = %d, want %d", len(hist.DataPoints), tt.points)
			}
			var total uint64
			for _, dp := range hist.DataPoints {
				total += dp.Count
				if tt.bounds != nil && !slices.Equal(dp.Bounds, tt.bounds) {
					t.Errorf("bounds = %v, want %v", dp.Bounds, tt.bounds)
				}
			}
			if total != tt.total {
				t.Errorf("samples = %d, want %d", total, tt.total)
			}
		})
	}
}

func TestDefaultMetrics_Shared(t *testing.T) {
	t.Parallel()
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
