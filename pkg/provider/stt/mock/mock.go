// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out a fresh Session per StartStream call and publishes it on
// Started so tests can drive it:
//
//	p := mock.NewProvider()
//	h, _ := p.StartStream(ctx, cfg)
//	sess := <-p.Started
//	sess.Say("next", 0.9)
//	sess.End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned from StartStream.
	StartErr error

	// Block makes StartStream wait for Release or ctx cancellation, which
	// simulates a slow microphone permission prompt.
	Block   bool
	release chan struct{}

	// StopTranscript, if non-empty, is emitted by every session when Stop is
	// called, emulating push-to-talk transcription.
	StopTranscript string

	// StopErr ends sessions with this error on Stop.
	StopErr error

	// Started receives every session as it is opened.
	Started chan *Session

	// Configs records the config of every StartStream call.
	Configs []stt.StreamConfig
}

// NewProvider returns a provider with a buffered Started channel.
func NewProvider() *Provider {
	return &Provider{Started: make(chan *Session, 16)}
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.Configs = append(p.Configs, cfg)
	var wait chan struct{}
	if p.Block {
		if p.release == nil {
			p.release = make(chan struct{})
		}
		wait = p.release
	}
	p.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		Stream:         stt.NewStream(16),
		stopTranscript: p.StopTranscript,
		stopErr:        p.StopErr,
	}
	if p.Started != nil {
		p.Started <- s
	}
	return s, nil
}

// Release unblocks pending and future StartStream calls.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Block = false
	if p.release != nil {
		close(p.release)
		p.release = nil
	}
}

// StartCount returns the number of StartStream calls.
func (p *Provider) StartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// Config returns the config of the i-th StartStream call.
func (p *Provider) Config(i int) stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Configs[i]
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	*stt.Stream

	stopTranscript string
	stopErr        error

	mu         sync.Mutex
	StopCalls  int
	CloseCalls int
}

// Say emits a final transcript.
func (s *Session) Say(text string, confidence float64) bool {
	return s.Emit(types.Transcript{Text: text, Confidence: confidence})
}

// Stop implements stt.SessionHandle.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.StopCalls++
	s.mu.Unlock()
	if s.stopTranscript != "" {
		s.Say(s.stopTranscript, 1)
	}
	s.End(s.stopErr)
	return nil
}

// Close implements stt.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()
	s.End(stt.ErrAborted)
	return nil
}

// Calls returns the Stop and Close counts.
func (s *Session) Calls() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCalls, s.CloseCalls
}
