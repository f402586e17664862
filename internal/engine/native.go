package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/prefs"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/speech"
)

var _ Engine = (*Native)(nil)

const (
	// DefaultListenTimeout closes a one-shot recognition session that has
	// produced no result.
	DefaultListenTimeout = 5 * time.Second

	// DefaultRestartDelay is the pause before continuous recognition
	// reopens after a session ends.
	DefaultRestartDelay = 500 * time.Millisecond
)

// Native speaks with a platform synthesizer and listens with a streaming
// recognizer.
type Native struct {
	synth speech.Synthesizer
	rec   stt.Provider
	cb    Callbacks
	opts  options

	base   context.Context
	cancel context.CancelFunc
	queue  *speechQueue

	mu          sync.Mutex
	prefs       prefs.Preferences
	continuous  bool
	session     stt.SessionHandle
	heard       bool
	userStopped bool
	destroyed   bool
	restart     *time.Timer
	timeout     *time.Timer
}

// NewNative builds a native engine. rec may be nil, in which case
// StartListening fails with stt.ErrUnsupported.
func NewNative(synth speech.Synthesizer, rec stt.Provider, p prefs.Preferences, opts ...Option) *Native {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	e := &Native{
		synth:      synth,
		rec:        rec,
		cb:         o.callbacks,
		opts:       o,
		prefs:      p.Clamp(),
		continuous: o.continuous,
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	e.queue = newSpeechQueue(e.say, queueHooks{
		hold:    synth.Pause,
		release: synth.Resume,
		onStart: e.cb.speechStart,
		onEnd:   e.speechEnded,
		onErr: func(err error) {
			slog.Warn("engine: speech synthesis failed", "err", err)
			e.cb.err(err)
		},
	})
	return e
}

func (e *Native) say(ctx context.Context, text string) error {
	p := e.Preferences()
	return e.synth.Speak(ctx, speech.Utterance{
		Text:     text,
		Rate:     p.Rate,
		Pitch:    p.Pitch,
		Volume:   p.Volume,
		Language: p.Language,
		Voice:    SelectVoice(e.synth.Voices(), p),
	})
}

func (e *Native) speechEnded() {
	e.cb.speechEnd()
	e.scheduleRestart()
}

// Kind implements Engine.
func (e *Native) Kind() string { return "native" }

// Speak implements Engine.
func (e *Native) Speak(text string, interrupt bool) { e.queue.push(text, interrupt) }

// Stop implements Engine.
func (e *Native) Stop() { e.queue.flush() }

// Pause implements Engine.
func (e *Native) Pause() { e.queue.pause() }

// Resume implements Engine.
func (e *Native) Resume() { e.queue.resume() }

// Speaking implements Engine.
func (e *Native) Speaking() bool { return e.queue.busy() }

// Prefetch implements Engine. The platform synthesizer has no cache.
func (e *Native) Prefetch([]string) {}

// Listening implements Engine.
func (e *Native) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Preferences implements Engine.
func (e *Native) Preferences() prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs
}

// UpdatePreferences implements Engine.
func (e *Native) UpdatePreferences(patch prefs.Patch) prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefs = patch.Apply(e.prefs)
	return e.prefs
}

// SetContinuous implements Engine. Turning it on starts listening right away
// when the engine is idle.
func (e *Native) SetContinuous(on bool) {
	e.mu.Lock()
	e.continuous = on
	idle := e.session == nil && !e.destroyed
	if on {
		e.userStopped = false
	}
	e.mu.Unlock()
	if on && idle && !e.Speaking() {
		if err := e.StartListening(); err != nil {
			slog.Debug("engine: continuous start failed", "err", err)
		}
	}
}

// StartListening implements Engine.
func (e *Native) StartListening() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	if e.session != nil {
		e.mu.Unlock()
		return nil
	}
	if e.rec == nil {
		e.mu.Unlock()
		e.cb.err(stt.ErrUnsupported)
		return stt.ErrUnsupported
	}
	e.userStopped = false
	e.stopTimersLocked()
	cfg := stt.StreamConfig{Language: e.prefs.Language, Continuous: e.continuous}
	e.mu.Unlock()

	e.queue.flush()

	h, err := e.rec.StartStream(e.base, cfg)
	if err != nil {
		if stt.IsTransient(err) {
			slog.Debug("engine: recognition start skipped", "err", err)
			return nil
		}
		slog.Warn("engine: recognition start failed", "err", err)
		e.cb.err(err)
		return err
	}

	e.mu.Lock()
	if e.destroyed || e.session != nil {
		e.mu.Unlock()
		_ = h.Close()
		return nil
	}
	e.session = h
	e.heard = false
	if !cfg.Continuous {
		e.timeout = time.AfterFunc(e.opts.listenTimeout, func() { e.expire(h) })
	}
	e.mu.Unlock()

	e.cb.listening(true)
	go e.consume(h)
	return nil
}

// expire stops a one-shot session that heard nothing.
func (e *Native) expire(h stt.SessionHandle) {
	e.mu.Lock()
	stale := e.session != h || e.heard
	e.mu.Unlock()
	if stale {
		return
	}
	slog.Debug("engine: listen window elapsed")
	_ = h.Stop()
}

func (e *Native) consume(h stt.SessionHandle) {
	for t := range h.Finals() {
		e.mu.Lock()
		e.heard = true
		e.mu.Unlock()
		if t.Text == "" {
			continue
		}
		e.cb.result(t)
	}

	e.mu.Lock()
	current := e.session == h
	if current {
		e.session = nil
		e.stopTimersLocked()
	}
	e.mu.Unlock()

	if err := h.Err(); err != nil && !stt.IsTransient(err) {
		slog.Warn("engine: recognition ended with error", "err", err)
		e.cb.err(err)
	}
	if current {
		e.cb.listening(false)
		e.scheduleRestart()
	}
}

// scheduleRestart reopens continuous recognition after the restart delay if
// nothing else has claimed the microphone by then.
func (e *Native) scheduleRestart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.continuous || e.userStopped || e.destroyed || e.session != nil || e.restart != nil {
		return
	}
	e.restart = time.AfterFunc(e.opts.restartDelay, func() {
		e.mu.Lock()
		e.restart = nil
		ok := e.continuous && !e.userStopped && !e.destroyed && e.session == nil
		e.mu.Unlock()
		if !ok || e.Speaking() {
			return
		}
		if err := e.StartListening(); err != nil {
			slog.Debug("engine: continuous restart failed", "err", err)
		}
	})
}

func (e *Native) stopTimersLocked() {
	if e.timeout != nil {
		e.timeout.Stop()
		e.timeout = nil
	}
	if e.restart != nil {
		e.restart.Stop()
		e.restart = nil
	}
}

// StopListening implements Engine. An explicit stop also suppresses the
// continuous restart until the next StartListening.
func (e *Native) StopListening() {
	e.mu.Lock()
	e.userStopped = true
	e.stopTimersLocked()
	h := e.session
	e.mu.Unlock()
	if h != nil {
		_ = h.Stop()
	}
}

// Destroy implements Engine.
func (e *Native) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.stopTimersLocked()
	h := e.session
	e.mu.Unlock()

	e.queue.close()
	if h != nil {
		_ = h.Close()
	}
	e.cancel()
}
