package stt

import (
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/types"
)

// Stream is the channel plumbing shared by session implementations: a
// Finals channel that is closed exactly once together with the session's
// terminal error.
type Stream struct {
	finals chan types.Transcript
	done   chan struct{}
	once   sync.Once

	mu    sync.RWMutex
	ended bool
	err   error
}

// NewStream returns a stream whose Finals channel buffers buf results.
func NewStream(buf int) *Stream {
	return &Stream{
		finals: make(chan types.Transcript, buf),
		done:   make(chan struct{}),
	}
}

// Emit delivers t on Finals. It blocks while the buffer is full and returns
// false once the stream has ended.
func (s *Stream) Emit(t types.Transcript) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended {
		return false
	}
	select {
	case s.finals <- t:
		return true
	case <-s.done:
		return false
	}
}

// End closes Finals with the given terminal error. Only the first call has
// an effect. It reports whether this call ended the stream.
func (s *Stream) End(err error) bool {
	first := false
	s.once.Do(func() {
		first = true
		close(s.done)
		s.mu.Lock()
		s.err = err
		s.ended = true
		close(s.finals)
		s.mu.Unlock()
	})
	return first
}

// Finals returns the results channel.
func (s *Stream) Finals() <-chan types.Transcript { return s.finals }

// Done is closed as soon as End is called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the terminal error once the stream has ended.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
