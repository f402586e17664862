package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

func TestCacheKey(t *testing.T) {
	t.Parallel()
	if CacheKey("  Say NEXT ", 1, 1) != CacheKey("say next", 1, 1) {
		t.Error("key is not case and whitespace insensitive")
	}
	if CacheKey("next", 1, 1) == CacheKey("next", 1.2, 1) {
		t.Error("rate does not change the key")
	}
	if CacheKey("next", 1, 1) == CacheKey("next", 1, 0.8) {
		t.Error("pitch does not change the key")
	}
}

func TestAudioCacheEvictsOldestFifth(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var released []string
	c := NewAudioCache(WithRelease(func(key string, _ audio.Clip) {
		mu.Lock()
		released = append(released, key)
		mu.Unlock()
	}))

	for i := range DefaultCacheSize {
		c.Put(fmt.Sprintf("k%03d", i), audio.Clip{Data: []byte{byte(i)}})
	}
	if c.Len() != DefaultCacheSize {
		t.Fatalf("Len = %d, want %d", c.Len(), DefaultCacheSize)
	}
	// Touch the oldest entry so it survives.
	if _, ok := c.Get("k000"); !ok {
		t.Fatal("k000 missing")
	}

	c.Put("k100", audio.Clip{})
	if want := DefaultCacheSize + 1 - 20; c.Len() != want {
		t.Fatalf("Len after eviction = %d, want %d", c.Len(), want)
	}
	if len(released) != 20 {
		t.Fatalf("released %d clips, want 20", len(released))
	}
	if _, ok := c.Get("k000"); !ok {
		t.Error("recently used k000 was evicted")
	}
	for _, k := range []string{"k001", "k020"} {
		if c.Contains(k) {
			t.Errorf("%s should have been evicted", k)
		}
	}
	if !c.Contains("k021") || !c.Contains("k100") {
		t.Error("newer entries were evicted")
	}
}

func TestAudioCacheClearAndClose(t *testing.T) {
	t.Parallel()
	var n int
	c := NewAudioCache(WithCacheSize(5), WithRelease(func(string, audio.Clip) { n++ }))
	c.Put("a", audio.Clip{})
	c.Put("b", audio.Clip{})
	c.Put("a", audio.Clip{Data: []byte{1}})
	if n != 1 {
		t.Errorf("replace released %d clips, want 1", n)
	}
	c.Clear()
	if c.Len() != 0 || n != 3 {
		t.Errorf("after Clear: Len=%d released=%d", c.Len(), n)
	}
	c.Close()
	c.Put("late", audio.Clip{})
	if c.Len() != 0 || n != 4 {
		t.Errorf("Put after Close: Len=%d released=%d", c.Len(), n)
	}
}

func TestAudioCacheMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	c := NewAudioCache(WithCacheSize(5), WithCacheMetrics(m))
	for i := range 6 {
		c.Put(fmt.Sprint(i), audio.Clip{})
	}
	c.Get("5")
	c.Get("missing")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	if sums["orbitvoice.audio_cache.evictions"] != 1 {
		t.Errorf("evictions = %d, want 1", sums["orbitvoice.audio_cache.evictions"])
	}
	if sums["orbitvoice.audio_cache.lookups"] != 2 {
		t.Errorf("lookups = %d, want 2", sums["orbitvoice.audio_cache.lookups"])
	}
}
