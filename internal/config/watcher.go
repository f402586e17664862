package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc receives a reloaded config together with what changed.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// Watcher polls a config file and reports valid changes. Invalid edits are
// logged and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it in a background goroutine.
// onChange may be nil.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash, w.lastMtime = cfg, hash, mtime

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Reload(false)
		}
	}
}

// Reload re-reads the file now. Unless force is set, an unchanged
// modification time skips the read. It reports whether a new config was
// installed.
func (w *Watcher) Reload(force bool) bool {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config: watcher cannot stat file", "path", w.path, "err", err)
			return false
		}
		w.mu.Lock()
		same := info.ModTime().Equal(w.lastMtime)
		w.mu.Unlock()
		if same {
			return false
		}
	}

	cfg, hash, mtime, err := w.read()
	if err != nil {
		slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	w.lastMtime = mtime
	if hash == w.lastHash {
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config: reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"voice_changed", d.VoiceChanged,
		"restart_required", d.RestartRequired)
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: some changes apply after restart", "sections", d.RestartRequired)
	}

	// Outside the lock so the callback may call Current.
	if w.onChange != nil && !d.Empty() {
		w.onChange(old, cfg, d)
	}
	return true
}

// read parses and validates the file and returns it with its SHA-256 hash
// and modification time.
func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
