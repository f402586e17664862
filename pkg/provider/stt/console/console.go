// Package console provides a streaming recognizer that reads utterances from
// a text stream, one per line. It stands in for platform speech recognition
// when the tutor runs in a terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

// Provider turns lines of r into transcripts with confidence 1.
//
// Lines typed while no session is open are kept and delivered to the next
// session. When r reaches EOF the open session and every later StartStream
// fail with an error wrapping io.EOF.
type Provider struct {
	lines chan string
	eof   chan struct{}

	startOnce sync.Once
	r         io.Reader
	readErr   error
}

// New returns a provider reading from r.
func New(r io.Reader) *Provider {
	return &Provider{
		r:     r,
		lines: make(chan string, 16),
		eof:   make(chan struct{}),
	}
}

func (p *Provider) pump() {
	defer close(p.eof)
	sc := bufio.NewScanner(p.r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p.lines <- line
	}
	p.readErr = sc.Err()
}

func (p *Provider) endErr() error {
	if p.readErr != nil {
		return fmt.Errorf("console stt: %w", p.readErr)
	}
	return fmt.Errorf("console stt: %w", io.EOF)
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.startOnce.Do(func() { go p.pump() })

	select {
	case <-p.eof:
		if len(p.lines) == 0 {
			return nil, p.endErr()
		}
	default:
	}

	s := &session{
		Stream: stt.NewStream(1),
		stop:   make(chan struct{}),
	}
	go s.run(ctx, p, cfg.Continuous)
	return s, nil
}

type session struct {
	*stt.Stream
	stop     chan struct{}
	stopOnce sync.Once
	aborted  bool
	mu       sync.Mutex
}

func (s *session) run(ctx context.Context, p *Provider, continuous bool) {
	for {
		select {
		case line := <-p.lines:
			if !s.Emit(types.Transcript{Text: line, Confidence: 1}) {
				return
			}
			if !continuous {
				s.End(nil)
				return
			}
		case <-p.eof:
			// Drain whatever was read before EOF first.
			select {
			case line := <-p.lines:
				if !s.Emit(types.Transcript{Text: line, Confidence: 1}) {
					return
				}
				if !continuous {
					s.End(nil)
					return
				}
				continue
			default:
			}
			s.End(p.endErr())
			return
		case <-s.stop:
			s.mu.Lock()
			aborted := s.aborted
			s.mu.Unlock()
			if aborted {
				s.End(stt.ErrAborted)
			} else {
				s.End(nil)
			}
			return
		case <-ctx.Done():
			s.End(stt.ErrAborted)
			return
		}
	}
}

func (s *session) halt(abort bool) {
	s.mu.Lock()
	if abort {
		s.aborted = true
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stop implements stt.SessionHandle.
func (s *session) Stop() error {
	s.halt(false)
	return nil
}

// Close implements stt.SessionHandle.
func (s *session) Close() error {
	s.halt(true)
	return nil
}
