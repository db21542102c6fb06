// Package webhook implements an HTTP POST sink.
//
// Each batch is posted as one NDJSON request body. Retries with exponential
// backoff on 5xx responses and network errors.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/cukemsg/iox"
	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
	"github.com/justapithecus/cukemsg/wire"
)

// ContentType is the request content type.
const ContentType = "application/x-ndjson"

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the webhook sink.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Sink posts envelope batches via HTTP.
type Sink struct {
	config Config
	client *http.Client
}

// New creates a webhook sink from the given config.
// Returns an error if the URL is empty.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook sink requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Sink{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Write posts the batch as NDJSON, one envelope per line, in order.
// 4xx responses are non-retriable and fail immediately.
func (s *Sink) Write(ctx context.Context, envelopes []*messages.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := wire.NewNDJSONEncoder(&body)
	for _, env := range envelopes {
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("webhook: encode %s: %w", env.Type(), err)
		}
	}
	payload := body.Bytes()

	return sink.Retry(ctx, "webhook", s.config.Retries, func(ctx context.Context) error {
		err := s.doRequest(ctx, payload)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("non-retriable error: %w: %w", sink.ErrPermanent, err)
		}
		return err
	})
}

// StatusError is returned for non-2xx HTTP responses.
// Wrapping the status code allows callers to distinguish retriable (5xx)
// from non-retriable (4xx) failures.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// doRequest performs a single HTTP POST and returns nil on 2xx.
func (s *Sink) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", ContentType)
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}

// Close releases sink resources.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Verify Sink implements the sink interface.
var _ sink.Sink = (*Sink)(nil)
