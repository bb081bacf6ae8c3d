package ingest

import (
	"context"
	"time"
)

// RetryPolicy retries an operation on transient failures with exponential
// backoff: BaseDelay before the second attempt, doubling each attempt after
// that. One policy instance is injected wherever retrying is needed instead
// of each caller hand-rolling a sleep loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the historical loaders: 3 attempts, delays of
// 1s then 2s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs op until it succeeds, fails non-transiently, exhausts MaxAttempts,
// or ctx is done. The last error is returned unmodified so callers can still
// classify it.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
