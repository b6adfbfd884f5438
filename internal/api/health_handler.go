package api

import (
	"log/slog"
	"net/http"
)

// HealthChecker reports whether the store is reachable.
type HealthChecker interface {
	Healthy() bool
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	checker HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. A nil checker is always healthy.
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checker: checker, logger: logger}
}

// ServeHTTP writes "OK", or 503 once the store has been unreachable beyond
// the retry budget.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	status, body := http.StatusOK, "OK"
	if h.checker != nil && !h.checker.Healthy() {
		status, body = http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}
