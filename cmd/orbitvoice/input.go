package main

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/accessibility"
	"github.com/orbitlearn/orbitvoice/internal/engine"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Terminal stand-ins for the keyboard shortcuts. A line holding only one of
// these is dispatched as key events instead of being treated as speech.
const (
	chordToggle = ":toggle" // Ctrl+Space
	chordTalk   = ":talk"   // press and hold Ctrl
	chordDone   = ":done"   // release Ctrl
)

// splitInput forwards speech lines from r to the returned reader and turns
// chord lines into key events on keys. The reader reaches EOF with r.
func splitInput(r io.Reader, keys *accessibility.Dispatcher) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if dispatchChord(keys, strings.ToLower(strings.TrimSpace(line))) {
				continue
			}
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		pw.CloseWithError(sc.Err())
	}()
	return pr
}

func dispatchChord(keys *accessibility.Dispatcher, chord string) bool {
	switch chord {
	case chordToggle:
		keys.Dispatch(accessibility.KeyEvent{Key: accessibility.KeySpace, Down: true, Ctrl: true})
		keys.Dispatch(accessibility.KeyEvent{Key: accessibility.KeySpace, Ctrl: true})
	case chordTalk:
		keys.Dispatch(accessibility.KeyEvent{Key: accessibility.KeyControl, Down: true, Ctrl: true})
	case chordDone:
		keys.Dispatch(accessibility.KeyEvent{Key: accessibility.KeyControl})
	default:
		return false
	}
	slog.Debug("orbitvoice: key chord", "chord", chord)
	return true
}

// callbackRelay lets one engine outlive the per-lesson tutors that consume
// its callbacks.
type callbackRelay struct {
	mu sync.RWMutex
	cb engine.Callbacks
}

func (r *callbackRelay) set(cb engine.Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

func (r *callbackRelay) get() engine.Callbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cb
}

func (r *callbackRelay) callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnSpeechStart: func() {
			if fn := r.get().OnSpeechStart; fn != nil {
				fn()
			}
		},
		OnSpeechEnd: func() {
			if fn := r.get().OnSpeechEnd; fn != nil {
				fn()
			}
		},
		OnRecognitionResult: func(t types.Transcript) {
			if fn := r.get().OnRecognitionResult; fn != nil {
				fn(t)
			}
		},
		OnListeningChange: func(on bool) {
			if fn := r.get().OnListeningChange; fn != nil {
				fn(on)
			}
		},
		OnError: func(err error) {
			if fn := r.get().OnError; fn != nil {
				fn(err)
			}
		},
	}
}
