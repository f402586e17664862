// Package mock provides a test double for engine.Engine that records every
// call instead of producing sound.
package mock

import (
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/internal/prefs"
)

var _ engine.Engine = (*Engine)(nil)

// Utterance is one recorded Speak call.
type Utterance struct {
	Text      string
	Interrupt bool
}

// Engine is a mock implementation of engine.Engine.
type Engine struct {
	mu sync.Mutex

	Prefs prefs.Preferences

	// StartErr, if non-nil, is returned from StartListening.
	StartErr error

	// SpeakingFlag is reported by Speaking.
	SpeakingFlag bool

	Spoken     []Utterance
	Prefetched [][]string

	StopCalls, PauseCalls, ResumeCalls int
	StartListeningCalls                int
	StopListeningCalls                 int
	Continuous                         bool
	listening                          bool
	Destroyed                          bool
}

// New returns a mock with default preferences.
func New() *Engine { return &Engine{Prefs: prefs.Defaults()} }

// Kind implements engine.Engine.
func (e *Engine) Kind() string { return "mock" }

// Speak implements engine.Engine.
func (e *Engine) Speak(text string, interrupt bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Spoken = append(e.Spoken, Utterance{Text: text, Interrupt: interrupt})
}

// Stop implements engine.Engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopCalls++
}

// Pause implements engine.Engine.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PauseCalls++
}

// Resume implements engine.Engine.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResumeCalls++
}

// StartListening implements engine.Engine.
func (e *Engine) StartListening() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartListeningCalls++
	if e.StartErr != nil {
		return e.StartErr
	}
	e.listening = true
	return nil
}

// StopListening implements engine.Engine.
func (e *Engine) StopListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopListeningCalls++
	e.listening = false
}

// SetContinuous implements engine.Engine.
func (e *Engine) SetContinuous(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Continuous = on
}

// UpdatePreferences implements engine.Engine.
func (e *Engine) UpdatePreferences(patch prefs.Patch) prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Prefs = patch.Apply(e.Prefs)
	return e.Prefs
}

// Preferences implements engine.Engine.
func (e *Engine) Preferences() prefs.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Prefs
}

// Prefetch implements engine.Engine.
func (e *Engine) Prefetch(texts []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Prefetched = append(e.Prefetched, append([]string(nil), texts...))
}

// Speaking implements engine.Engine.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.SpeakingFlag
}

// Listening implements engine.Engine.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Destroy implements engine.Engine.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Destroyed = true
}

// Texts returns the text of every Speak call in order.
func (e *Engine) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Spoken))
	for i, u := range e.Spoken {
		out[i] = u.Text
	}
	return out
}

// Reset clears the recorded utterances.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Spoken = nil
}

// ListenCalls returns the StartListening and StopListening counts.
func (e *Engine) ListenCalls() (starts, stops int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StartListeningCalls, e.StopListeningCalls
}
