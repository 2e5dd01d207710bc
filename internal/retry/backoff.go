// Package retry provides exponential backoff for operations that can fail
// transiently, such as database reconnects and channel subscriptions.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is wrapped by Retry once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Retryer runs fn until it succeeds, the context ends or attempts run out.
type Retryer interface {
	Retry(ctx context.Context, fn func() error) error
}

// ExponentialBackoff retries with a delay that doubles (by default) after every attempt.
type ExponentialBackoff struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

// Option configures an ExponentialBackoff.
type Option func(*ExponentialBackoff)

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(b *ExponentialBackoff) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

// WithBaseDelay sets the delay after the first failed attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(b *ExponentialBackoff) { b.baseDelay = d }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(b *ExponentialBackoff) { b.maxDelay = d }
}

// WithMultiplier sets the growth factor between delays.
func WithMultiplier(m float64) Option {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithoutJitter disables the random jitter added to each delay.
func WithoutJitter() Option {
	return func(b *ExponentialBackoff) { b.jitter = false }
}

// NewExponentialBackoff creates a retryer with sensible defaults:
// 5 retries, 100ms base delay, 30s cap, factor 2 and up to 25% jitter.
func NewExponentialBackoff(opts ...Option) *ExponentialBackoff {
	b := &ExponentialBackoff{
		maxRetries: 5,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   30 * time.Second,
		multiplier: 2.0,
		jitter:     true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attempts returns the total number of times fn may be called.
func (b *ExponentialBackoff) Attempts() int {
	return b.maxRetries + 1
}

// Retry executes fn with exponential backoff between failed attempts.
func (b *ExponentialBackoff) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == b.maxRetries {
			break
		}

		delay := b.Delay(attempt)
		slog.DebugContext(ctx, "Retry attempt failed, waiting before next attempt",
			"event", "retry_attempt",
			"attempt", attempt+1, "max_attempts", b.maxRetries+1,
			"delay_ms", delay.Milliseconds(), "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, b.maxRetries+1, lastErr)
}

// Delay returns the wait after the given zero-based attempt.
func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := float64(b.baseDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitter {
		// up to 25% on top
		delay += rand.Float64() * delay * 0.25
	}

	return time.Duration(delay)
}
