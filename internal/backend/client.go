// Package backend is the HTTP client for the Orbit learning API: curriculum
// and teaching content, score submission, the lesson chat assistant and user
// registration.
package backend

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbitlearn/orbitvoice/internal/lesson"
	"github.com/orbitlearn/orbitvoice/internal/observe"
)

// ErrStatus is wrapped by every error caused by a non-2xx response.
var ErrStatus = errors.New("backend: unexpected status")

const defaultTimeout = 30 * time.Second

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithMetrics overrides the metrics used for request latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// Client talks to one Orbit backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	metrics *observe.Metrics
}

// New returns a client for the backend at baseURL, e.g.
// "http://localhost:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid baseURL %q", baseURL)
	}
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: defaultTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = observe.HTTPClient(c.timeout)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// BaseURL returns the backend root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends one request. in (when non-nil) is JSON-encoded as the body and
// the response is decoded into out (when non-nil). endpoint names the call
// in spans and metrics.
func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) (err error) {
	ctx, span := observe.StartSpan(ctx, "backend."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	start := time.Now()
	defer func() {
		c.metrics.BackendDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("endpoint", endpoint)))
		if err != nil {
			c.metrics.RecordProviderError(ctx, "orbit", "backend")
		}
		observe.EndSpan(span, err)
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: %s: marshal: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: %s: build request: %w", endpoint, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordProviderRequest(ctx, "orbit", "backend", fmt.Sprint(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend: %s: %w %d: %s", endpoint, ErrStatus, resp.StatusCode, detail(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: %s: read: %w", endpoint, err)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: %s: decode: %w", endpoint, err)
	}
	return nil
}

// detail extracts FastAPI's {"detail": ...} message when present.
func detail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

// Curriculum fetches the learner's module tree.
func (c *Client) Curriculum(ctx context.Context, userID string) (*Curriculum, error) {
	var cur Curriculum
	path := "/api/curriculum?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "curriculum", http.MethodGet, path, nil, &cur); err != nil {
		return nil, err
	}
	return &cur, nil
}

// TeachingContent fetches and validates the blocks of one subtopic.
func (c *Client) TeachingContent(ctx context.Context, subtopicID, userID string) (*lesson.Content, error) {
	if subtopicID == "" {
		return nil, errors.New("backend: teaching: subtopic id must not be empty")
	}
	var raw json.RawMessage
	path := "/api/teaching/" + url.PathEscape(subtopicID) + "?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "teaching", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	content, err := lesson.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: teaching: %w", err)
	}
	return content, nil
}

// SubmitScore records the final score (0 to 100) for a finished subtopic.
func (c *Client) SubmitScore(ctx context.Context, s Score) error {
	if s.FinalScore < 0 || s.FinalScore > 100 {
		return fmt.Errorf("backend: score: final score %d out of range", s.FinalScore)
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, "score", http.MethodPost, "/api/attempts/score", s, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("backend: score: not accepted")
	}
	return nil
}

// Chat asks the lesson assistant a question about lessonContext and returns
// the answer text.
func (c *Client) Chat(ctx context.Context, message, lessonContext string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("backend: chat: message must not be empty")
	}
	var resp struct {
		Response string `json:"response"`
		Success  bool   `json:"success"`
	}
	req := chatRequest{Message: message, Context: lessonContext}
	if err := c.do(ctx, "chat", http.MethodPost, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Response)
	if answer == "" {
		return "", errors.New("backend: chat: empty response")
	}
	return answer, nil
}

// CreateUser registers a learner. Registering an existing id succeeds.
func (c *Client) CreateUser(ctx context.Context, id, name string) error {
	return c.do(ctx, "users", http.MethodPost, "/api/users", userRequest{ID: id, Name: name}, nil)
}
