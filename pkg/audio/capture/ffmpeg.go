// Package capture records microphone audio by running ffmpeg against the
// platform's capture device and reading raw PCM from its stdout.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/pkg/audio"
)

var _ audio.Microphone = (*FFmpeg)(nil)

// stopGrace is how long Stop waits for ffmpeg to flush after "q" before
// killing it.
const stopGrace = 2 * time.Second

// Option configures an [FFmpeg] microphone.
type Option func(*FFmpeg)

// WithBinary overrides the ffmpeg executable. Defaults to "ffmpeg" on PATH.
func WithBinary(path string) Option {
	return func(m *FFmpeg) { m.binary = path }
}

// WithDevice overrides the input format and device, for example
// ("pulse", "default") or ("avfoundation", ":1").
func WithDevice(inputFormat, device string) Option {
	return func(m *FFmpeg) {
		m.inputFormat = inputFormat
		m.device = device
	}
}

// WithFormat sets the PCM format of recordings. Defaults to
// [audio.SpeechFormat].
func WithFormat(f audio.Format) Option {
	return func(m *FFmpeg) { m.format = f }
}

// FFmpeg is an [audio.Microphone] backed by an ffmpeg subprocess.
type FFmpeg struct {
	binary      string
	inputFormat string
	device      string
	format      audio.Format

	mu     sync.Mutex
	active *recording
}

// New returns a microphone on the platform default capture device.
func New(opts ...Option) *FFmpeg {
	in, dev := defaultDevice(runtime.GOOS)
	m := &FFmpeg{
		binary:      "ffmpeg",
		inputFormat: in,
		device:      dev,
		format:      audio.SpeechFormat,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func defaultDevice(goos string) (inputFormat, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "alsa", "default"
	}
}

func (m *FFmpeg) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", m.inputFormat, "-i", m.device,
		"-f", "s16le",
		"-ac", strconv.Itoa(m.format.Channels),
		"-ar", strconv.Itoa(m.format.SampleRate),
		"pipe:1",
	}
}

// Record implements [audio.Microphone].
func (m *FFmpeg) Record(ctx context.Context) (audio.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, audio.ErrDeviceBusy
	}

	if _, err := exec.LookPath(m.binary); err != nil {
		return nil, fmt.Errorf("capture: %w: %w", audio.ErrNoDevice, err)
	}

	cmd := exec.CommandContext(ctx, m.binary, m.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	r := &recording{
		owner:  m,
		cmd:    cmd,
		stdin:  stdin,
		format: m.format,
		done:   make(chan struct{}),
	}
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	go func() {
		defer close(r.done)
		_, r.readErr = io.Copy(&r.pcm, stdout)
		r.waitErr = cmd.Wait()
	}()

	m.active = r
	slog.Debug("capture: recording started", "device", m.device, "format", m.format.String())
	return r, nil
}

func (m *FFmpeg) release(r *recording) {
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()
}

type recording struct {
	owner  *FFmpeg
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	format audio.Format

	// Written by the reader goroutine, read after done is closed.
	pcm     bytes.Buffer
	stderr  bytes.Buffer
	readErr error
	waitErr error
	done    chan struct{}

	once sync.Once
}

func (r *recording) finish(abort bool) {
	r.once.Do(func() {
		if abort {
			_ = r.cmd.Process.Kill()
		} else {
			// ffmpeg finishes cleanly on "q".
			_, _ = io.WriteString(r.stdin, "q")
			_ = r.stdin.Close()
			select {
			case <-r.done:
			case <-time.After(stopGrace):
				_ = r.cmd.Process.Kill()
			}
		}
		<-r.done
		r.owner.release(r)
	})
}

// Stop implements [audio.Recording].
func (r *recording) Stop() (audio.Clip, error) {
	r.finish(false)
	if err := classify(r.stderr.String()); err != nil {
		return audio.Clip{}, fmt.Errorf("capture: %w", err)
	}
	if r.pcm.Len() == 0 {
		if r.waitErr != nil {
			return audio.Clip{}, fmt.Errorf("capture: ffmpeg: %w: %s", r.waitErr, strings.TrimSpace(r.stderr.String()))
		}
		if r.readErr != nil {
			return audio.Clip{}, fmt.Errorf("capture: read: %w", r.readErr)
		}
	}
	pcm := r.pcm.Bytes()
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.Clip{Data: audio.EncodeWAV(pcm, r.format), ContentType: "audio/wav"}, nil
}

// Abort implements [audio.Recording].
func (r *recording) Abort() { r.finish(true) }

// classify maps ffmpeg's device errors onto the audio sentinels.
func classify(stderr string) error {
	s := strings.ToLower(stderr)
	switch {
	case s == "":
		return nil
	case strings.Contains(s, "permission denied"), strings.Contains(s, "not authorized"):
		return audio.ErrPermission
	case strings.Contains(s, "busy"):
		return audio.ErrDeviceBusy
	case strings.Contains(s, "no such file"), strings.Contains(s, "no such device"),
		strings.Contains(s, "could not find"), strings.Contains(s, "cannot open audio device"):
		return audio.ErrNoDevice
	}
	return nil
}

// IsDeviceError reports whether err is a capture hardware or permission
// failure that the user must fix.
func IsDeviceError(err error) bool {
	return errors.Is(err, audio.ErrNoDevice) ||
		errors.Is(err, audio.ErrDeviceBusy) ||
		errors.Is(err, audio.ErrPermission)
}
