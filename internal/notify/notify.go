// Package notify delivers reminder messages to patients through an external
// transport. The engine only sees the Sender interface.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// ErrDeliveryFailed is returned when the transport rejected a message.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// Message is one reminder addressed to a patient.
type Message struct {
	PatientID    uuid.UUID `json:"patient_id"`
	OccurrenceID uuid.UUID `json:"occurrence_id"`
	Message      string    `json:"message"`
}

// Sender hands messages to a notification transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With(slog.String("component", "log_sender"))}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "reminder",
		slog.String("patient_id", msg.PatientID.String()),
		slog.String("occurrence_id", msg.OccurrenceID.String()),
		slog.String("message", msg.Message))
	return nil
}
