// Package accessibility owns the process-wide visual impairment mode: the
// persisted on/off toggle and the keyboard shortcuts bound to it.
//
// A [Context] is mounted once per host. While mounted it listens to a
// [KeySource]: Ctrl+Space (or Cmd+Space) toggles the mode, and holding Ctrl
// on its own talks to the tutor for as long as the key is held.
package accessibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/internal/prefs"
)

// Announcements spoken on toggle.
const (
	AnnounceOn  = "Visual impairment mode on"
	AnnounceOff = "Visual impairment mode off"
)

// DefaultHoldDelay is how long Ctrl must be held alone before push-to-talk
// opens the microphone.
const DefaultHoldDelay = 300 * time.Millisecond

// ErrMounted is returned by Mount when the context is already mounted.
var ErrMounted = errors.New("accessibility: already mounted")

// PreferenceStore persists the toggle.
type PreferenceStore interface {
	Load(ctx context.Context) (prefs.Preferences, error)
	Update(ctx context.Context, patch prefs.Patch) (prefs.Preferences, error)
}

// Announcer speaks a short confirmation.
type Announcer interface {
	Speak(text string, interrupt bool)
}

// Listener is the push-to-talk target.
type Listener interface {
	StartListening() error
	StopListening()
}

// Option configures a [Context].
type Option func(*Context)

// WithAnnouncer sets who speaks the toggle confirmation.
func WithAnnouncer(a Announcer) Option {
	return func(c *Context) { c.announcer = a }
}

// WithPushToTalk enables hold-Ctrl listening on l.
func WithPushToTalk(l Listener) Option {
	return func(c *Context) { c.listener = l }
}

// WithHoldDelay overrides [DefaultHoldDelay].
func WithHoldDelay(d time.Duration) Option {
	return func(c *Context) { c.holdDelay = d }
}

// WithOnToggle registers a callback run after every toggle with the new
// state.
func WithOnToggle(fn func(on bool)) Option {
	return func(c *Context) { c.onToggle = fn }
}

// Context is the accessibility toggle and shortcut binding.
type Context struct {
	store     PreferenceStore
	source    KeySource
	announcer Announcer
	listener  Listener
	holdDelay time.Duration
	onToggle  func(bool)

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
	on          bool
	ctrlHeld    bool
	holdTimer   *time.Timer
	talking     bool
}

// New returns an unmounted context.
func New(store PreferenceStore, source KeySource, opts ...Option) *Context {
	c := &Context{store: store, source: source, holdDelay: DefaultHoldDelay}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Mount loads the persisted state and starts listening for shortcuts.
// ctx bounds the persistence calls made from key handlers.
func (c *Context) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return ErrMounted
	}
	c.mu.Unlock()

	p, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("accessibility: loading preferences failed", "err", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		return ErrMounted
	}
	c.ctx = ctx
	c.on = p.AccessibilityModeOn
	if c.source != nil {
		c.unsubscribe = c.source.Subscribe(c.handle)
	} else {
		c.unsubscribe = func() {}
	}
	return nil
}

// Unmount removes the key subscription and closes any open push-to-talk
// window. It is safe to call when not mounted.
func (c *Context) Unmount() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.ctrlHeld = false
	c.stopHoldLocked()
	talking := c.talking
	c.talking = false
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if talking {
		c.listener.StopListening()
	}
}

// Enabled reports whether the mode is on.
func (c *Context) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

// Toggle flips the mode, persists it and announces the new state.
func (c *Context) Toggle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.on = !c.on
	on := c.on
	talking := c.talking && !on
	if talking {
		c.talking = false
	}
	c.mu.Unlock()

	if talking {
		c.listener.StopListening()
	}
	if c.announcer != nil {
		msg := AnnounceOff
		if on {
			msg = AnnounceOn
		}
		c.announcer.Speak(msg, true)
	}
	if c.onToggle != nil {
		c.onToggle(on)
	}
	if _, err := c.store.Update(ctx, prefs.Patch{AccessibilityModeOn: &on}); err != nil {
		return on, fmt.Errorf("accessibility: persist toggle: %w", err)
	}
	slog.Info("accessibility: mode toggled", "on", on)
	return on, nil
}

func (c *Context) handle(ev KeyEvent) {
	switch {
	case ev.Key == KeySpace && ev.Down && (ev.Ctrl || ev.Meta):
		if ev.Repeat {
			return
		}
		c.mu.Lock()
		c.stopHoldLocked()
		ctx := c.ctx
		c.mu.Unlock()
		if _, err := c.Toggle(ctx); err != nil {
			slog.Warn("accessibility: toggle failed", "err", err)
		}

	case ev.Key == KeyControl && ev.Down:
		if ev.Repeat {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.ctrlHeld = true
		if c.listener == nil || !c.on || c.talking {
			return
		}
		c.stopHoldLocked()
		c.holdTimer = time.AfterFunc(c.holdDelay, c.beginTalk)

	case ev.Key == KeyControl && !ev.Down:
		c.mu.Lock()
		c.ctrlHeld = false
		c.stopHoldLocked()
		talking := c.talking
		c.talking = false
		c.mu.Unlock()
		if talking {
			c.listener.StopListening()
		}

	case ev.Down && ev.Key != KeyControl:
		// Any other key while Ctrl is down is a shortcut, not push-to-talk.
		c.mu.Lock()
		c.stopHoldLocked()
		c.mu.Unlock()
	}
}

func (c *Context) beginTalk() {
	c.mu.Lock()
	if c.holdTimer == nil || !c.ctrlHeld || !c.on || c.talking {
		c.mu.Unlock()
		return
	}
	c.holdTimer = nil
	c.talking = true
	c.mu.Unlock()

	if err := c.listener.StartListening(); err != nil {
		slog.Warn("accessibility: push-to-talk failed", "err", err)
		c.mu.Lock()
		c.talking = false
		c.mu.Unlock()
	}
}

func (c *Context) stopHoldLocked() {
	if c.holdTimer != nil {
		c.holdTimer.Stop()
		c.holdTimer = nil
	}
}

// Talking reports whether a push-to-talk window is open.
func (c *Context) Talking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.talking
}
