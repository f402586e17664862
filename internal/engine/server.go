package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/pkg/audio"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

var _ Engine = (*Server)(nil)

// Server fetches speech from a TTS provider, caches the clips and plays them
// on an audio.Player. Recognition is push-to-talk.
//
// The microphone is tracked with two variables: shouldListen is what the
// learner asked for and listening is what the hardware is doing. A stop that
// arrives while the microphone is still opening is honoured as soon as the
// open completes.
type Server struct {
	tts    tts.Provider
	player audio.Player
	rec    stt.Provider
	cb     Callbacks
	opts   options
	cache  *AudioCache
	flight singleflight.Group

	base      context.Context
	cancel    context.CancelFunc
	queue     *speechQueue
	prefetchs sync.WaitGroup

	mu           sync.Mutex
	prefs        prefs.Preferences
	shouldListen bool
	listening    bool
	starting     bool
	session      stt.SessionHandle
	timeout      *time.Timer
	destroyed    bool
}

// NewServer builds a server-backed engine. rec may be nil, in which case
// StartListening fails with stt.ErrUnsupported.
func NewServer(synth tts.Provider, player audio.Player, rec stt.Provider, p prefs.Preferences, opts ...Option) *Server {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	cacheOpts := []CacheOption{WithCacheSize(o.cacheSize)}
	if o.release != nil {
		cacheOpts = append(cacheOpts, WithRelease(o.release))
	}
	if o.metrics != nil {
		cacheOpts = append(cacheOpts, WithCacheMetrics(o.metrics))
	}
	e := &Server{
		tts:    synth,
		player: player,
		rec:    rec,
		cb:     o.callbacks,
		opts:   o,
		cache:  NewAudioCache(cacheOpts...),
		prefs:  p.Clamp(),
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	e.queue = newSpeechQueue(e.play, queueHooks{
		hold:    player.Pause,
		release: player.Resume,
		onStart: e.cb.speechStart,
		onEnd:   e.cb.speechEnd,
		onErr: func(err error) {
			slog.Warn("engine: playback failed", "err", err)
			e.cb.err(err)
		},
	})
	return e
}

// Cache exposes the clip cache.
func (e *Server) Cache() *AudioCache { return e.cache }

// Kind implements Engine.
func (e *Server) Kind() string { return "server" }

// fetch returns the clip for text, synthesising it at most once however many
// callers ask concurrently. The synthesis itself is bound to the engine's
// lifetime, so an interrupted utterance still fills the cache.
func (e *Server) fetch(ctx context.Context, text string) (audio.Clip, error) {
	p := e.Preferences()
	key := CacheKey(text, p.Rate, p.Pitch)
	if clip, ok := e.cache.Get(key); ok {
		return clip, nil
	}
	ch := e.flight.DoChan(key, func() (any, error) {
		// A flight for key may have finished since the lookup above.
		if clip, ok := e.cache.Peek(key); ok {
			return clip, nil
		}
		start := time.Now()
		a, err := e.tts.Synthesize(e.base, tts.Request{
			Text:     text,
			Rate:     p.Rate,
			Pitch:    p.Pitch,
			Voice:    p.VoiceName,
			Language: p.Language,
		})
		if m := e.opts.metrics; m != nil {
			m.TTSDuration.Record(e.base, time.Since(start).Seconds())
		}
		if err != nil {
			return nil, err
		}
		clip := audio.Clip{Data: a.Data, ContentType: a.ContentType}
		e.cache.Put(key, clip)
		return clip, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return audio.Clip{}, fmt.Errorf("engine: synthesize: %w", r.Err)
		}
		return r.Val.(audio.Clip), nil
	case <-ctx.Done():
		return audio.Clip{}, ctx.Err()
	}
}

func (e *Server) play(ctx context.Context, text string) error {
	clip, err := e.fetch(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A failed fetch skips this utterance; the queue carries on.
		slog.Warn("engine: tts fetch failed", "text", text, "err", err)
		return nil
	}
	if err := e.player.Play(ctx, clip, e.Preferences().Volume); err != nil && ctx.Err() == nil {
		slog.Warn("engine: playback failed", "err", err)
	}
	return nil
}

// Prefetch implements Engine. Texts already cached or in flight are skipped.
func (e *Server) Prefetch(texts []string) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.prefetchs.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.prefetchs.Done()
		e.prefetch(e.base, texts)
	}()
}

func (e *Server) prefetch(ctx context.Context, texts []string) {
	p := e.Preferences()
	var g errgroup.Group
	g.SetLimit(e.opts.prefetchConcurrency)
	seen := make(map[string]bool, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		key := CacheKey(text, p.Rate, p.Pitch)
		if seen[key] || e.cache.Contains(key) {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			if _, err := e.fetch(ctx, text); err != nil {
				slog.Debug("engine: prefetch failed", "text", text, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// WaitPrefetch blocks until every background prefetch has finished.
func (e *Server) WaitPrefetch() { e.prefetchs.Wait() }

// Speak implements Engine.
func (e *Server) Speak(text string, interrupt bool) { e.queue.push(text, interrupt) }

// Stop implements Engine.
func (e *Server) Stop() { e.queue.flush() }

// Pause implements Engine.
func (e *Server) Pause() { e.queue.pause() }

// Resume implements Engine.
func (e *Server) Resume() { e.queue.resume() }

// Speaking implements Engine.
func (e *Server) Speaking() bool { return e.queue.busy() }

// SetContinuous implements Engine. Push-to-talk has no continuous mode.
func (e *Server) SetContinuous(bool) {}

// Listening implements Engine. It reports the hardware state, not the
// learner's intention.
func (e *Server) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Preferences implements Engine.
func (e *Server) Preferences() prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs
}

// UpdatePreferences implements Engine. Cached clips rendered at the old rate
// or pitch stay cached under their own keys.
func (e *Server) UpdatePreferences(patch prefs.Patch) prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefs = patch.Apply(e.prefs)
	return e.prefs
}

// StartListening implements Engine.
func (e *Server) StartListening() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	if e.rec == nil {
		e.mu.Unlock()
		e.cb.err(stt.ErrUnsupported)
		return stt.ErrUnsupported
	}
	e.shouldListen = true
	if e.listening || e.starting {
		e.mu.Unlock()
		return nil
	}
	e.starting = true
	cfg := stt.StreamConfig{Language: e.prefs.Language}
	e.mu.Unlock()

	e.queue.flush()
	h, err := e.rec.StartStream(e.base, cfg)

	e.mu.Lock()
	e.starting = false
	if err != nil {
		e.shouldListen = false
		e.mu.Unlock()
		if stt.IsTransient(err) {
			slog.Debug("engine: recognition start skipped", "err", err)
			return nil
		}
		slog.Warn("engine: microphone start failed", "err", err)
		e.cb.err(err)
		return err
	}
	if !e.shouldListen || e.destroyed {
		e.mu.Unlock()
		slog.Debug("engine: stop requested while microphone opened")
		_ = h.Close()
		return nil
	}
	e.listening = true
	e.session = h
	e.timeout = time.AfterFunc(e.opts.listenTimeout, func() { e.expire(h) })
	e.mu.Unlock()

	e.cb.listening(true)
	go e.consume(h)
	return nil
}

func (e *Server) expire(h stt.SessionHandle) {
	e.mu.Lock()
	current := e.session == h
	e.mu.Unlock()
	if current {
		slog.Debug("engine: push-to-talk window elapsed")
		e.StopListening()
	}
}

// StopListening implements Engine. The captured audio is transcribed in the
// background and delivered through OnRecognitionResult.
func (e *Server) StopListening() {
	e.mu.Lock()
	e.shouldListen = false
	h := e.session
	was := e.listening
	e.session = nil
	e.listening = false
	if e.timeout != nil {
		e.timeout.Stop()
		e.timeout = nil
	}
	e.mu.Unlock()
	if h == nil {
		return
	}
	_ = h.Stop()
	if was {
		e.cb.listening(false)
	}
}

func (e *Server) consume(h stt.SessionHandle) {
	for t := range h.Finals() {
		if t.Text != "" {
			e.cb.result(t)
		}
	}

	// The session ended without StopListening, e.g. on a capture error.
	e.mu.Lock()
	notify := false
	if e.session == h {
		e.session = nil
		notify = e.listening
		e.listening = false
		e.shouldListen = false
		if e.timeout != nil {
			e.timeout.Stop()
			e.timeout = nil
		}
	}
	e.mu.Unlock()

	if err := h.Err(); err != nil && !stt.IsTransient(err) {
		slog.Warn("engine: recognition failed", "err", err)
		e.cb.err(err)
	}
	if notify {
		e.cb.listening(false)
	}
}

// Destroy implements Engine. It stops playback, aborts recognition, waits
// for prefetches and releases every cached clip.
func (e *Server) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.shouldListen = false
	h := e.session
	e.session = nil
	e.listening = false
	if e.timeout != nil {
		e.timeout.Stop()
		e.timeout = nil
	}
	e.mu.Unlock()

	e.queue.close()
	if h != nil {
		_ = h.Close()
	}
	e.cancel()
	e.prefetchs.Wait()
	e.cache.Close()
}
