// Package melody talks to the melody generation service and provides a
// reference implementation of that service.
package melody

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

	"golang.org/x/time/rate"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/timeline"
)

const (
	// DefaultTimeout bounds every request to the service.
	DefaultTimeout = 10 * time.Second
	// DefaultRate is the number of requests per second.
	DefaultRate = 2

	generatePath      = "/generate"
	generateMusicPath = "/generate-music"
	// maxBody limits the size of decoded responses.
	maxBody = 1 << 20
)

var (
	// ErrGenerationFailed is returned when the service is unreachable or
	// its response is not usable.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrNoNotes is returned when generation is requested without notes.
	ErrNoNotes = errors.New("no notes provided")
)

// Note is a generated note with its timing.
type Note struct {
	Note      string  `json:"note"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Timeline converts timed notes to a timeline. Note durations are dropped.
func Timeline(notes []Note) timeline.Timeline {
	events := make([]timeline.NoteEvent, len(notes))
	for i, n := range notes {
		events[i] = timeline.NoteEvent{Note: n.Note, Time: n.StartTime}
	}
	return timeline.New(events...)
}

type generateRequest struct {
	Notes []string `json:"notes"`
}

type generateResponse struct {
	GeneratedNotes []string `json:"generated_notes"`
}

type generateMusicResponse struct {
	Notes []Note `json:"notes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client calls the melody generation service. It's safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     log.Logger
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRate limits requests per second. Non-positive value disables the
// limit.
func WithRate(r float64) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
}

// WithHTTPClient replaces the http client. Timeout option should follow.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a client of the service at baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), 1),
		log:     log.Silent(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Generate sends note names and returns generated continuation.
func (c *Client) Generate(ctx context.Context, notes []string) ([]string, error) {
	if len(notes) == 0 {
		return nil, ErrNoNotes
	}
	body, err := json.Marshal(generateRequest{Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	var resp generateResponse
	if err := c.do(ctx, http.MethodPost, generatePath, body, &resp); err != nil {
		return nil, err
	}
	if resp.GeneratedNotes == nil {
		return nil, fmt.Errorf("%w: response has no generated_notes", ErrGenerationFailed)
	}
	c.log.Debug(fmt.Sprintf("generated %d notes from %d", len(resp.GeneratedNotes), len(notes)))
	return resp.GeneratedNotes, nil
}

// GenerateMusic requests a new phrase of timed notes.
func (c *Client) GenerateMusic(ctx context.Context) ([]Note, error) {
	var resp generateMusicResponse
	if err := c.do(ctx, http.MethodGet, generateMusicPath, nil, &resp); err != nil {
		return nil, err
	}
	c.log.Debug(fmt.Sprintf("generated music of %d notes", len(resp.Notes)))
	return resp.Notes, nil
}

// do executes the request and decodes json response into v. All errors
// wrap ErrGenerationFailed.
func (c *Client) do(ctx context.Context, method, path string, body []byte, v interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %v: %w", ErrGenerationFailed, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%w: %v %v: %s", ErrGenerationFailed, path, resp.Status, e.Error)
		}
		return fmt.Errorf("%w: %v %v", ErrGenerationFailed, path, resp.Status)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %v: %w", ErrGenerationFailed, path, err)
	}
	return nil
}
