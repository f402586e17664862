// Package mock provides a test double for the tts.Provider interface.
//
// By default every request yields a deterministic clip derived from the text,
// so tests can tell clips apart. Set Err to simulate backend failures or
// Block to hold requests until the context is cancelled or Release is called.
package mock

import (
	"bytes"
	"context"
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every Synthesize call.
	Err error

	// ErrFor fails only the requests whose text is a key.
	ErrFor map[string]error

	// Block makes Synthesize wait for Release (or ctx cancellation).
	Block bool

	release chan struct{}

	// Calls records every request in order.
	Calls []tts.Request
}

// Synthesize records req and returns a clip whose payload is the text padded
// past [tts.MinAudioBytes].
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	err := p.Err
	if e, ok := p.ErrFor[req.Text]; ok {
		err = e
	}
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
	if err != nil {
		return nil, err
	}
	return &tts.Audio{Data: Clip(req.Text), ContentType: "audio/wav"}, nil
}

// Release unblocks all pending and future Synthesize calls.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Block = false
	if p.release != nil {
		close(p.release)
		p.release = nil
	}
}

// CallCount returns the number of Synthesize calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Texts returns the text of every request in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Clip returns the payload the mock produces for text.
func Clip(text string) []byte {
	return append([]byte(text+"|"), bytes.Repeat([]byte{0}, tts.MinAudioBytes)...)
}
