// Package mock provides test doubles for audio.Player and audio.Microphone.
package mock

import (
	"context"
	"sync"

	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

var (
	_ audio.Player     = (*Player)(nil)
	_ audio.Microphone = (*Microphone)(nil)
)

// Player records clips instead of playing them.
//
// With Hold set, every Play blocks until [Player.Finish] is called or its
// context is cancelled, so tests can observe queue ordering. Each Play sends
// its clip on Started (if non-nil) before blocking.
type Player struct {
	mu sync.Mutex

	// Hold makes Play wait for Finish.
	Hold bool

	// Err, if non-nil, is returned from Play after the clip starts.
	Err error

	// Started receives each clip as playback begins. Tests should buffer it.
	Started chan audio.Clip

	current chan struct{}
	paused  bool

	// Played holds clips that played to completion, in order.
	Played []audio.Clip

	// Cancelled holds clips whose context was cancelled mid-play.
	Cancelled []audio.Clip

	// Volumes holds the volume passed with every Play call.
	Volumes []float64

	PauseCalls  int
	ResumeCalls int
}

// Play implements audio.Player.
func (p *Player) Play(ctx context.Context, clip audio.Clip, volume float64) error {
	p.mu.Lock()
	p.Volumes = append(p.Volumes, volume)
	var wait chan struct{}
	if p.Hold {
		wait = make(chan struct{})
		p.current = wait
	}
	started, err := p.Started, p.Err
	p.mu.Unlock()

	if started != nil {
		started <- clip
	}
	if err != nil {
		return err
	}

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			p.mu.Lock()
			p.Cancelled = append(p.Cancelled, clip)
			if p.current == wait {
				p.current = nil
			}
			p.mu.Unlock()
			return ctx.Err()
		}
	} else if ctx.Err() != nil {
		p.mu.Lock()
		p.Cancelled = append(p.Cancelled, clip)
		p.mu.Unlock()
		return ctx.Err()
	}

	p.mu.Lock()
	p.Played = append(p.Played, clip)
	p.mu.Unlock()
	return nil
}

// Finish completes the clip currently held in Play. It reports whether a
// clip was playing.
func (p *Player) Finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return false
	}
	close(p.current)
	p.current = nil
	return true
}

// Pause implements audio.Player.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PauseCalls++
	p.paused = true
}

// Resume implements audio.Player.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResumeCalls++
	p.paused = false
}

// Paused reports whether Pause was called more recently than Resume.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// PlayedClips returns a copy of Played.
func (p *Player) PlayedClips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.Played...)
}

// CancelledClips returns a copy of Cancelled.
func (p *Player) CancelledClips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.Cancelled...)
}

// Microphone hands out scripted recordings.
type Microphone struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Record.
	Err error

	// Clip is returned from every Recording.Stop.
	Clip audio.Clip

	// StopErr, if non-nil, is returned from Recording.Stop.
	StopErr error

	open *Recording

	RecordCalls int
}

// Record implements audio.Microphone. A second Record while one is open
// returns audio.ErrDeviceBusy.
func (m *Microphone) Record(_ context.Context) (audio.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.open != nil {
		return nil, audio.ErrDeviceBusy
	}
	r := &Recording{mic: m}
	m.open = r
	return r, nil
}

// Open reports whether a recording is in progress.
func (m *Microphone) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open != nil
}

func (m *Microphone) close(r *Recording) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open == r {
		m.open = nil
	}
}

// Recording is the mock audio.Recording.
type Recording struct {
	mic *Microphone

	mu      sync.Mutex
	Stopped bool
	Aborted bool
}

// Stop implements audio.Recording.
func (r *Recording) Stop() (audio.Clip, error) {
	r.mu.Lock()
	r.Stopped = true
	r.mu.Unlock()
	r.mic.close(r)

	r.mic.mu.Lock()
	defer r.mic.mu.Unlock()
	if r.mic.StopErr != nil {
		return audio.Clip{}, r.mic.StopErr
	}
	return r.mic.Clip, nil
}

// Abort implements audio.Recording.
func (r *Recording) Abort() {
	r.mu.Lock()
	r.Aborted = true
	r.mu.Unlock()
	r.mic.close(r)
}
