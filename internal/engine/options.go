package engine

import (
	"time"

	"github.com/orbitlearn/orbitvoice/internal/observe"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

// DefaultPrefetchConcurrency bounds parallel TTS requests made by Prefetch.
const DefaultPrefetchConcurrency = 3

type options struct {
	callbacks           Callbacks
	continuous          bool
	listenTimeout       time.Duration
	restartDelay        time.Duration
	cacheSize           int
	prefetchConcurrency int
	metrics             *observe.Metrics
	release             func(string, audio.Clip)
}

func defaultOptions() options {
	return options{
		listenTimeout:       DefaultListenTimeout,
		restartDelay:        DefaultRestartDelay,
		cacheSize:           DefaultCacheSize,
		prefetchConcurrency: DefaultPrefetchConcurrency,
	}
}

// Option configures an engine.
type Option func(*options)

// WithCallbacks sets the lifecycle hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(o *options) { o.callbacks = cb }
}

// WithContinuous starts the engine in continuous recognition mode.
func WithContinuous(on bool) Option {
	return func(o *options) { o.continuous = on }
}

// WithListenTimeout overrides [DefaultListenTimeout].
func WithListenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.listenTimeout = d
		}
	}
}

// WithRestartDelay overrides [DefaultRestartDelay].
func WithRestartDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.restartDelay = d
		}
	}
}

// WithAudioCacheSize overrides [DefaultCacheSize] for the server engine.
func WithAudioCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithPrefetchConcurrency overrides [DefaultPrefetchConcurrency].
func WithPrefetchConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetchConcurrency = n
		}
	}
}

// WithMetrics records TTS latency and cache activity.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClipRelease is called for every clip the server engine's cache lets go
// of, including on Destroy.
func WithClipRelease(fn func(key string, clip audio.Clip)) Option {
	return func(o *options) { o.release = fn }
}
