package sync

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of transient page-level failures with
// exponential backoff. It applies only to the orchestrator's page fetch
// and upsert calls; every other component fails fast.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns 3 attempts starting at 500ms, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2}
}

// sleepFunc pauses for d, returning early with the context error on
// cancellation. Injectable so tests can use a fake clock.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run executes op up to MaxAttempts times. The delay before attempt n+1
// is BaseDelay * Multiplier^(n-1). Returns the last attempt's error.
func (p RetryPolicy) run(ctx context.Context, sleep sleepFunc, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}

	return lastErr
}
