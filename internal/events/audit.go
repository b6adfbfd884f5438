package events

import (
	"context"
	"log/slog"
)

// AuditLogHandler writes every event it receives to the structured log, giving
// operators a trail of misses and supersessions.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler creates an AuditLogHandler.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogHandler{logger: logger.With(slog.String("component", "audit"))}
}

// HandleEvent logs the event. Missed occurrences are logged at warn level.
func (h *AuditLogHandler) HandleEvent(ctx context.Context, event *Event) error {
	level := slog.LevelInfo
	if event.Type == TypeOccurrenceMissed {
		level = slog.LevelWarn
	}
	h.logger.LogAttrs(ctx, level, "event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.String("patient_id", event.PatientID.String()),
		slog.Time("created_at", event.CreatedAt),
		slog.String("payload", string(event.Payload)),
	)
	return nil
}

var _ EventHandler = (*AuditLogHandler)(nil)
