package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/orbitlearn/orbitvoice/internal/observe"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTracker(t *testing.T) (*Tracker, *clock, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return New(WithClock(c.now), WithMetrics(m)), c, reader
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestStats(t *testing.T) {
	t.Parallel()
	tr, c, _ := newTracker(t)
	ctx := context.Background()

	if _, ok := tr.Stats(); ok {
		t.Fatal("stats without a session")
	}

	tr.StartSession("u1", "s1")
	tr.CommandRecognized(ctx, "next", "next", 0.9)
	tr.CommandRecognized(ctx, "repeat", "repeat that", 0.7)
	tr.CommandFailed(ctx, "banana")
	tr.Misrecognition(ctx, "nex", 0.2)
	tr.Misrecognition(ctx, "mumble", -1)
	c.t = c.t.Add(90 * time.Second)

	s, ok := tr.Stats()
	if !ok {
		t.Fatal("no stats")
	}
	if s.TotalCommands != 3 {
		t.Errorf("TotalCommands = %d, want 3", s.TotalCommands)
	}
	if !near(s.SuccessRate, 2.0/3) {
		t.Errorf("SuccessRate = %v", s.SuccessRate)
	}
	if !near(s.MisrecognitionRate, 2.0/3) {
		t.Errorf("MisrecognitionRate = %v", s.MisrecognitionRate)
	}
	if !near(s.AverageConfidence, 0.6) {
		t.Errorf("AverageConfidence = %v, want 0.6", s.AverageConfidence)
	}
	if s.Duration != 90*time.Second {
		t.Errorf("Duration = %v", s.Duration)
	}
}

func TestEmptySession(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTracker(t)
	tr.StartSession("u1", "s1")
	s, ok := tr.Stats()
	if !ok || s.TotalCommands != 0 || s.SuccessRate != 0 || s.AverageConfidence != 0 {
		t.Errorf("stats = %+v, %v", s, ok)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTracker(t)
	ctx := context.Background()

	tr.CommandFailed(ctx, "before any session")
	tr.StartSession("u1", "s1")
	tr.CommandFailed(ctx, "x")
	tr.StartSession("u1", "s2")
	if n := len(tr.Events()); n != 0 {
		t.Errorf("events after restart = %d", n)
	}
	tr.CommandFailed(ctx, "y")
	tr.EndSession()
	tr.EndSession()
	if _, ok := tr.Stats(); ok {
		t.Error("stats after EndSession")
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	tr, _, reader := newTracker(t)
	ctx := context.Background()
	tr.StartSession("u1", "s1")
	tr.CommandRecognized(ctx, "next", "next", 1)
	tr.CommandFailed(ctx, "??")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var commands, active int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "orbitvoice.commands":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					commands += dp.Value
				}
			case "orbitvoice.active_sessions":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					active += dp.Value
				}
			}
		}
	}
	if commands != 2 {
		t.Errorf("commands = %d, want 2", commands)
	}
	if active != 1 {
		t.Errorf("active sessions = %d, want 1", active)
	}
}
