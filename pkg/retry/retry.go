// Package retry implements a bounded-attempt retry policy with exponential
// delay and per-attempt parameter mutation, so restart loops can be tested
// without the OS task registry behind them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrAborted signals that the operation decided retrying is pointless.
// Do stops immediately when the operation returns an error wrapping it.
var ErrAborted = errors.New("retry aborted")

// Policy describes a bounded retry schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultPolicy matches the tracking auto-restart contract: three attempts
// with short exponential spacing.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Delay returns the wait before the given attempt (1-based). Attempt 1 has
// no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	// Exponential: base * 2^(attempt-2), capped at MaxDelay.
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-2)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d += time.Duration(rand.Float64() * 0.1 * float64(d))
	}
	return d
}

// Do runs op until it succeeds, aborts, or attempts run out. The attempt
// number (1-based) is passed to op so it can tighten its parameters on later
// tries. Between attempts Do honors context cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrAborted) {
			return lastErr
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
