// Package speaker plays synthesized clips on the default output device using
// faiface/beep.
//
// The device is opened once at a fixed sample rate. Clips recorded at another
// rate are resampled on the fly. WAV and MP3 payloads are supported.
package speaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	bspeaker "github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

var _ audio.Player = (*Speaker)(nil)

const (
	defaultSampleRate = beep.SampleRate(44100)
	resampleQuality   = 4
)

// Option configures a [Speaker].
type Option func(*Speaker)

// WithSampleRate sets the device rate. Defaults to 44.1 kHz.
func WithSampleRate(hz int) Option {
	return func(s *Speaker) {
		if hz > 0 {
			s.rate = beep.SampleRate(hz)
		}
	}
}

// WithBuffer sets the device buffer length. Defaults to 100 ms.
func WithBuffer(d time.Duration) Option {
	return func(s *Speaker) {
		if d > 0 {
			s.buffer = d
		}
	}
}

// Speaker is an [audio.Player] on the system's default output.
type Speaker struct {
	rate   beep.SampleRate
	buffer time.Duration

	mu   sync.Mutex
	ctrl *beep.Ctrl
}

// New opens the output device.
func New(opts ...Option) (*Speaker, error) {
	s := &Speaker{rate: defaultSampleRate, buffer: 100 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	if err := bspeaker.Init(s.rate, s.rate.N(s.buffer)); err != nil {
		return nil, fmt.Errorf("speaker: init: %w: %w", audio.ErrNoDevice, err)
	}
	return s, nil
}

func decode(clip audio.Clip) (beep.StreamSeekCloser, beep.Format, error) {
	ct := strings.ToLower(clip.ContentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return mp3.Decode(io.NopCloser(bytes.NewReader(clip.Data)))
	case ct == "", strings.Contains(ct, "wav"):
		return wav.Decode(bytes.NewReader(clip.Data))
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %s", audio.ErrUnsupported, clip.ContentType)
}

// Play implements [audio.Player].
func (s *Speaker) Play(ctx context.Context, clip audio.Clip, volume float64) error {
	streamer, format, err := decode(clip)
	if err != nil {
		return fmt.Errorf("speaker: decode: %w", err)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != s.rate {
		src = beep.Resample(resampleQuality, format.SampleRate, s.rate, src)
	}
	vol := &effects.Volume{Streamer: src, Base: 2}
	if volume <= 0 {
		vol.Silent = true
	} else if volume < 1 {
		vol.Volume = math.Log2(volume)
	}
	ctrl := &beep.Ctrl{Streamer: vol}

	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.ctrl == ctrl {
			s.ctrl = nil
		}
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	bspeaker.Play(beep.Seq(ctrl, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bspeaker.Lock()
		ctrl.Streamer = nil
		bspeaker.Unlock()
		return ctx.Err()
	}
}

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		return
	}
	bspeaker.Lock()
	ctrl.Paused = paused
	bspeaker.Unlock()
}

// Pause implements [audio.Player].
func (s *Speaker) Pause() { s.setPaused(true) }

// Resume implements [audio.Player].
func (s *Speaker) Resume() { s.setPaused(false) }

// Close stops all playback.
func (s *Speaker) Close() error {
	bspeaker.Clear()
	return nil
}
