package store

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds retries of transient store failures.
type RetryConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns three retries with exponential backoff starting
// at 50ms and capped at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// Retry calls fn until it succeeds, fails with a non-transient error, or the
// retry budget runs out. The final error is returned as-is, so
// IsTransientError still reports true when the budget was exhausted.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	backoff := retry.NewExponential(base)
	if cfg.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(cfg.MaxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if IsTransientError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
