// Package orbit provides the speech synthesis provider backed by the Orbit
// backend's Piper voice endpoint (POST /api/voice/synthesize).
//
// The endpoint takes {"text", "rate"} and answers with an encoded clip
// (WAV by default). Payloads of 100 bytes or fewer are treated as failures.
package orbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	synthesizeEndpoint = "/api/voice/synthesize"
	defaultTimeout     = 20 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider against the Orbit backend.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider for the backend at baseURL (e.g.
// "http://localhost:8000").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("orbit tts: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch,omitempty"`
	Voice string  `json:"voice,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("orbit tts: text must not be empty")
	}
	rate := req.Rate
	if rate == 0 {
		rate = 1
	}
	body, err := json.Marshal(synthesizeRequest{Text: req.Text, Rate: rate, Pitch: req.Pitch, Voice: req.Voice})
	if err != nil {
		return nil, fmt.Errorf("orbit tts: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+synthesizeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("orbit tts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("orbit tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("orbit tts: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("orbit tts: read audio: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/wav"
	}
	audio, err := tts.CheckAudio(data, ct)
	if err != nil {
		return nil, fmt.Errorf("orbit tts: %w", err)
	}
	return audio, nil
}
