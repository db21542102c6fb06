// Package redis implements a Redis pub/sub sink.
//
// Publishes each envelope as a JSON document to a configurable Redis channel.
// A batch is sent as one pipeline; the whole batch is retried with
// exponential backoff on connection errors, so delivery is at-least-once.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/cukemsg/messages"
	"github.com/justapithecus/cukemsg/sink"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "cukemsg:messages"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub sink.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: cukemsg:messages).
	Channel string
	// Timeout is the per-attempt timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Sink publishes envelopes via Redis PUBLISH.
type Sink struct {
	config Config
	client *goredis.Client
}

// New creates a Redis pub/sub sink from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis sink requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis sink: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Sink{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Channel returns the channel messages are published to.
func (s *Sink) Channel() string {
	return s.config.Channel
}

// Write publishes each envelope, in order, as a JSON PUBLISH.
func (s *Sink) Write(ctx context.Context, envelopes []*messages.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	bodies := make([][]byte, len(envelopes))
	for i, env := range envelopes {
		body, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("redis: marshal %s: %w", env.Type(), err)
		}
		bodies[i] = body
	}

	return sink.Retry(ctx, "redis", s.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		pipe := s.client.Pipeline()
		for _, body := range bodies {
			pipe.Publish(publishCtx, s.config.Channel, body)
		}
		_, err := pipe.Exec(publishCtx)
		return err
	})
}

// Close releases sink resources.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Verify Sink implements the sink interface.
var _ sink.Sink = (*Sink)(nil)
