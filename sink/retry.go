package sink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("sink: permanent failure")

// Backoff returns the delay before retry attempt i (1-based).
func Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// Retry calls op up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx is done or op returns an error matching
// ErrPermanent. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, op func(ctx context.Context) error) error {
	return retry(ctx, name, retries, Backoff, op)
}

func retry(ctx context.Context, name string, retries int, backoff func(int) time.Duration, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff(i)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
