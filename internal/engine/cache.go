package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

const (
	// DefaultCacheSize is the number of clips kept before eviction.
	DefaultCacheSize = 100

	// evictFraction of the capacity is dropped, oldest first, once the
	// cache grows past it.
	evictFraction = 0.2
)

// CacheKey identifies a clip by normalised text, rate and pitch.
func CacheKey(text string, rate, pitch float64) string {
	return fmt.Sprintf("%s|%.2f|%.2f", strings.ToLower(strings.TrimSpace(text)), rate, pitch)
}

// CacheOption configures an [AudioCache].
type CacheOption func(*AudioCache)

// WithCacheSize overrides [DefaultCacheSize].
func WithCacheSize(n int) CacheOption {
	return func(c *AudioCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithRelease registers a hook called for every clip that leaves the cache
// through eviction or Clear.
func WithRelease(fn func(key string, clip audio.Clip)) CacheOption {
	return func(c *AudioCache) { c.release = fn }
}

// WithCacheMetrics records lookups and evictions.
func WithCacheMetrics(m *observe.Metrics) CacheOption {
	return func(c *AudioCache) { c.metrics = m }
}

// AudioCache holds synthesized clips. Lookups refresh an entry's age; when
// the cache exceeds its capacity the oldest fifth is released.
type AudioCache struct {
	capacity int
	release  func(string, audio.Clip)
	metrics  *observe.Metrics

	mu      sync.Mutex
	entries map[string]*cacheEntry
	clock   uint64
	closed  bool
}

type cacheEntry struct {
	clip audio.Clip
	used uint64
}

// NewAudioCache returns an empty cache.
func NewAudioCache(opts ...CacheOption) *AudioCache {
	c := &AudioCache{capacity: DefaultCacheSize, entries: make(map[string]*cacheEntry)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the clip stored under key.
func (c *AudioCache) Get(key string) (audio.Clip, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.clock++
		e.used = c.clock
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(context.Background(), ok)
	}
	if !ok {
		return audio.Clip{}, false
	}
	return e.clip, true
}

// Peek returns the clip under key without counting a lookup or refreshing
// its age.
func (c *AudioCache) Peek(key string) (audio.Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return audio.Clip{}, false
	}
	return e.clip, true
}

// Contains reports whether key is cached without counting a lookup.
func (c *AudioCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Put stores clip under key, replacing any previous clip, and evicts if the
// cache is over capacity.
func (c *AudioCache) Put(key string, clip audio.Clip) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.releaseAll([]evicted{{key, clip}}, false)
		return
	}
	var replaced, dropped []evicted
	if old, ok := c.entries[key]; ok {
		replaced = append(replaced, evicted{key, old.clip})
	}
	c.clock++
	c.entries[key] = &cacheEntry{clip: clip, used: c.clock}
	if len(c.entries) > c.capacity {
		dropped = c.evictLocked()
	}
	c.mu.Unlock()
	c.releaseAll(replaced, false)
	c.releaseAll(dropped, true)
}

type evicted struct {
	key  string
	clip audio.Clip
}

func (c *AudioCache) evictLocked() []evicted {
	n := int(float64(c.capacity)*evictFraction + 0.5)
	n = max(n, len(c.entries)-c.capacity)
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].used < c.entries[keys[j]].used
	})
	out := make([]evicted, 0, n)
	for _, k := range keys[:min(n, len(keys))] {
		out = append(out, evicted{k, c.entries[k].clip})
		delete(c.entries, k)
	}
	return out
}

func (c *AudioCache) releaseAll(list []evicted, count bool) {
	if count && c.metrics != nil && len(list) > 0 {
		c.metrics.CacheEvictions.Add(context.Background(), int64(len(list)))
	}
	if c.release == nil {
		return
	}
	for _, e := range list {
		c.release(e.key, e.clip)
	}
}

// Len returns the number of cached clips.
func (c *AudioCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear releases every clip.
func (c *AudioCache) Clear() {
	c.drain(false)
}

// Close releases every clip. Clips stored afterwards are released at once.
func (c *AudioCache) Close() {
	c.drain(true)
}

func (c *AudioCache) drain(closing bool) {
	c.mu.Lock()
	if closing {
		c.closed = true
	}
	list := make([]evicted, 0, len(c.entries))
	for k, e := range c.entries {
		list = append(list, evicted{k, e.clip})
	}
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
	c.releaseAll(list, false)
}
