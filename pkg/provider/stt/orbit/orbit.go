// Package orbit provides push-to-talk recognition backed by the Orbit
// backend's transcription endpoint (POST /api/voice/transcribe).
//
// A session records from an [audio.Microphone] until Stop, normalises the
// capture to 16 kHz mono WAV and uploads it as multipart form data with the
// fields "audio" and "language". The backend answers
// {"transcript": "...", "confidence": 0.93}.
package orbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/orbitlearn/orbitvoice/pkg/audio"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

const (
	transcribeEndpoint = "/api/voice/transcribe"
	defaultTimeout     = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements stt.Provider against the Orbit backend.
type Provider struct {
	baseURL    string
	mic        audio.Microphone
	httpClient *http.Client
}

// New creates a Provider for the backend at baseURL that records from mic.
func New(baseURL string, mic audio.Microphone, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("orbit stt: baseURL must not be empty")
	}
	if mic == nil {
		return nil, errors.New("orbit stt: microphone must not be nil")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		mic:        mic,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens the microphone. Capture runs until Stop or Close.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	rec, err := p.mic.Record(ctx)
	if err != nil {
		return nil, fmt.Errorf("orbit stt: %w", stt.FromAudio(err))
	}
	sctx, cancel := context.WithCancel(ctx)
	return &session{
		Stream:   stt.NewStream(1),
		provider: p,
		rec:      rec,
		language: cfg.Language,
		ctx:      sctx,
		cancel:   cancel,
	}, nil
}

type transcribeResponse struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Transcribe uploads a WAV clip and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (types.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("orbit stt: build form: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return types.Transcript{}, fmt.Errorf("orbit stt: build form: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return types.Transcript{}, fmt.Errorf("orbit stt: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("orbit stt: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcribeEndpoint, &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("orbit stt: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.Transcript{}, fmt.Errorf("orbit stt: %w", errors.Join(stt.ErrAborted, err))
		}
		return types.Transcript{}, fmt.Errorf("orbit stt: request: %w", errors.Join(stt.ErrNetwork, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("orbit stt: server returned %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(msg)), stt.ErrTranscriptionFailed)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Transcript{}, fmt.Errorf("orbit stt: decode response: %w", errors.Join(stt.ErrTranscriptionFailed, err))
	}
	text := strings.TrimSpace(out.Transcript)
	if text == "" {
		return types.Transcript{}, stt.ErrNoSpeech
	}
	return types.Transcript{Text: text, Confidence: out.Confidence}, nil
}

// normalize converts a WAV capture to [audio.SpeechFormat]. Clips that are
// not PCM WAV are passed through for the backend to decode.
func normalize(clip audio.Clip) audio.Clip {
	pcm, f, err := audio.DecodeWAV(clip.Data)
	if err != nil || f == audio.SpeechFormat {
		return clip
	}
	out, err := audio.Convert(pcm, f, audio.SpeechFormat)
	if err != nil {
		slog.Debug("orbit stt: keeping capture format", "format", f.String(), "err", err)
		return clip
	}
	return audio.Clip{Data: audio.EncodeWAV(out, audio.SpeechFormat), ContentType: "audio/wav"}
}

type session struct {
	*stt.Stream
	provider *Provider
	rec      audio.Recording
	language string

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
}

// Stop ends capture and transcribes in the background.
func (s *session) Stop() error {
	s.once.Do(func() {
		clip, err := s.rec.Stop()
		if err != nil {
			s.cancel()
			s.End(fmt.Errorf("orbit stt: %w", stt.FromAudio(err)))
			return
		}
		go s.transcribe(normalize(clip))
	})
	return nil
}

func (s *session) transcribe(clip audio.Clip) {
	defer s.cancel()
	tr, err := s.provider.Transcribe(s.ctx, clip, s.language)
	if err != nil {
		s.End(err)
		return
	}
	s.Emit(tr)
	s.End(nil)
}

// Close discards the capture and any in-flight upload.
func (s *session) Close() error {
	s.once.Do(func() { s.rec.Abort() })
	s.cancel()
	s.End(stt.ErrAborted)
	return nil
}
