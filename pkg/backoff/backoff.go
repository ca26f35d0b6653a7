// Package backoff provides a generic retry executor with exponential backoff.
// It has no knowledge of what makes an error retryable; callers that need
// selective retry should wrap the operation and return nil for terminal errors.
package backoff

import (
	"context"
	"log"
	"time"
)

// Default retry parameters.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// Config controls the retry behavior of Execute.
type Config struct {
	// MaxAttempts is the total number of invocations, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the doubling delay between retries.
	MaxDelay time.Duration
}

// DefaultConfig returns the standard retry configuration:
// 3 attempts, 1s initial delay, 10s cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// delayForRetry returns the wait before retry number n (1-based):
// InitialDelay, then doubling, capped at MaxDelay.
func (c Config) delayForRetry(n int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Execute invokes op until it succeeds or MaxAttempts is reached. The wait
// between attempts is timer-based and honors ctx cancellation, so concurrent
// operations are never blocked. When the final attempt fails, that attempt's
// own error is returned unchanged; no synthetic "max attempts" error is
// introduced.
func Execute[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.delayForRetry(attempt)
		log.Printf("backoff: attempt %d/%d failed, retrying in %s: %v",
			attempt, cfg.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
