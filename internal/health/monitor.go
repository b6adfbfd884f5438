// Package health tracks whether the store is reachable. A ping that keeps
// failing for the whole retry budget turns the monitor unhealthy; the /health
// endpoint reports it so an orchestrator can restart or drain the instance.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/careminder/internal/store"
)

// ErrUnhealthy is returned by Check when the store could not be reached.
var ErrUnhealthy = errors.New("store unreachable beyond retry budget")

// Pinger is anything that can prove the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the monitor.
type Config struct {
	// Interval between background checks.
	Interval time.Duration
	// Timeout bounds a single check including its retries.
	Timeout time.Duration
	// Retry is the backoff budget for one check.
	Retry store.RetryConfig
}

// DefaultConfig returns a 30s interval with a 5s timeout and the default
// store retry budget.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Retry:    store.DefaultRetryConfig(),
	}
}

// Status is a snapshot of the monitor's view.
type Status struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Monitor pings the store on a schedule and remembers the outcome.
type Monitor struct {
	pinger Pinger
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewMonitor creates a monitor that starts out healthy.
func NewMonitor(pinger Pinger, cfg Config, logger *slog.Logger) *Monitor {
	if pinger == nil {
		panic("pinger cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		pinger: pinger,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "health_monitor")),
		status: Status{Healthy: true},
	}
}

// Check pings the store, retrying transient failures, and records the result.
func (m *Monitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	err := store.Retry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		if err := m.pinger.Ping(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			// every ping failure is worth another attempt
			if !store.IsTransientError(err) {
				return errors.Join(store.ErrTransient, err)
			}
			return err
		}
		return nil
	})
	m.Report(err)
	if err != nil {
		return errors.Join(ErrUnhealthy, err)
	}
	return nil
}

// Report records the outcome of a store operation made elsewhere, so a
// service that ran out of retries marks the instance unhealthy right away.
func (m *Monitor) Report(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasHealthy := m.status.Healthy
	m.status = Status{Healthy: err == nil, CheckedAt: time.Now().UTC()}
	if err != nil {
		m.status.LastError = err.Error()
	}

	switch {
	case wasHealthy && err != nil:
		m.logger.Error("store became unreachable", slog.String("error", err.Error()))
	case !wasHealthy && err == nil:
		m.logger.Info("store reachable again")
	}
}

// Healthy reports the last known state.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy
}

// Status returns the last recorded status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run checks the store every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	_ = m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Check(ctx)
		}
	}
}
