// Package retry implements a small bounded-retry helper with
// exponential backoff and jitter. It is shared by the callback
// dispatcher and available to any other component that needs to repeat
// an operation a limited number of times, with the caller supplying the
// transient-versus-permanent classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrAttemptsExhausted is returned (wrapping the last attempt error)
// when every allowed attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so
	// the operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Subsequent delays
	// double, scaled by a random jitter factor between 0.5 and 1.0.
	BaseDelay time.Duration

	// IsTransient classifies an attempt error. Errors it rejects are
	// returned immediately without further attempts. A nil func treats
	// every error as transient.
	IsTransient func(error) bool
}

// Do runs op under the policy, sleeping between attempts. It returns
// nil as soon as op succeeds, the original error for permanent
// failures, a wrapped ErrAttemptsExhausted once the attempt budget is
// spent, and the context error if ctx is cancelled while waiting.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) (err error)) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := p.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.IsTransient != nil && !p.IsTransient(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			break
		}

		// delay = baseDelay * 2^attempt * jitter, jitter in [0.5, 1.0)
		backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempt(s): %w", ErrAttemptsExhausted, maxRetries+1, lastErr)
}
