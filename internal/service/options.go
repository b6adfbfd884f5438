package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/careminder/internal/store"
)

type options struct {
	now    func() time.Time
	retry  store.RetryConfig
	logger *slog.Logger
}

// Option configures a service.
type Option func(*options)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetryConfig sets the retry budget for transient store failures.
func WithRetryConfig(cfg store.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		retry:  store.DefaultRetryConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// unitOfWork runs transactions against a backend, retrying transient failures.
type unitOfWork struct {
	backend store.Backend
	retry   store.RetryConfig
}

func (u unitOfWork) run(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	return store.Retry(ctx, u.retry, func(ctx context.Context) error {
		return u.backend.RunInTx(ctx, fn)
	})
}

// read runs fn against the non-transactional stores with the same retry budget.
func (u unitOfWork) read(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	return store.Retry(ctx, u.retry, func(ctx context.Context) error {
		return fn(ctx, u.backend.Stores())
	})
}
