// Package coqui provides a speech synthesis provider for a self-hosted Coqui
// TTS server. Two server flavours are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), GET /api/tts with query parameters.
//   - APIModeXTTS: the XTTS v2 API server, POST /tts_to_audio/ with a JSON
//     body; a speaker reference is required.
//
// Both return a WAV file per request. Neither honours a speaking rate, so
// Request.Rate and Request.Pitch are ignored.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
	xttsEndpoint    = "/tts_to_audio/"
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server flavour. Default: APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSpeaker sets the default speaker id (standard mode) or speaker WAV
// reference (XTTS mode) used when a request names no voice.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}
	speaker := req.Voice
	if speaker == "" {
		speaker = p.speaker
	}
	lang := p.language
	if req.Language != "" {
		lang, _, _ = strings.Cut(req.Language, "-")
	}

	var (
		httpReq *http.Request
		err     error
	)
	switch p.apiMode {
	case APIModeXTTS:
		if speaker == "" {
			return nil, errors.New("coqui: a speaker is required in XTTS mode")
		}
		body, merr := json.Marshal(xttsRequest{Text: req.Text, SpeakerWav: speaker, Language: lang})
		if merr != nil {
			return nil, fmt.Errorf("coqui: marshal request: %w", merr)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	default:
		q := url.Values{}
		q.Set("text", req.Text)
		if speaker != "" {
			q.Set("speaker_id", speaker)
		}
		q.Set("language_id", lang)
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio: %w", err)
	}
	audio, err := tts.CheckAudio(data, "audio/wav")
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return audio, nil
}
