package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/notify"
	"github.com/phrazzld/careminder/internal/store"
)

// Common errors
var (
	ErrNilReminderStore = errors.New("reminder store cannot be nil")
	ErrNilSender        = errors.New("sender cannot be nil")
	ErrEmptyOccurrence  = errors.New("occurrence ID cannot be empty")
)

// NotificationPayload is the data a NotificationTask carries
type NotificationPayload struct {
	OccurrenceID uuid.UUID `json:"occurrence_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Description  string    `json:"description"`
	DueAt        time.Time `json:"due_at"`
}

// NotificationTask sends the reminder for one dispatched occurrence. It
// re-reads the occurrence first and stays silent unless it is still awaiting
// confirmation, so a check-in or supersession that raced the queue wins.
type NotificationTask struct {
	id        uuid.UUID
	payload   NotificationPayload
	reminders store.ReminderStateStore
	sender    notify.Sender
	logger    *slog.Logger
	status    TaskStatus
}

// NewNotificationTask creates a new notification task
func NewNotificationTask(
	payload NotificationPayload,
	reminders store.ReminderStateStore,
	sender notify.Sender,
	logger *slog.Logger,
) (*NotificationTask, error) {
	if reminders == nil {
		return nil, ErrNilReminderStore
	}
	if sender == nil {
		return nil, ErrNilSender
	}
	if payload.OccurrenceID == uuid.Nil {
		return nil, ErrEmptyOccurrence
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &NotificationTask{
		id:        uuid.New(),
		payload:   payload,
		reminders: reminders,
		sender:    sender,
		logger: logger.With(
			"task_type", TaskTypeNotification,
			"occurrence_id", payload.OccurrenceID,
			"patient_id", payload.PatientID),
		status: TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *NotificationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *NotificationTask) Type() string {
	return TaskTypeNotification
}

// Payload returns the task data as a byte slice
func (t *NotificationTask) Payload() []byte {
	data, err := json.Marshal(t.payload)
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *NotificationTask) Status() TaskStatus {
	return t.status
}

// Execute sends the reminder if the occurrence still awaits confirmation.
// Failed sends are reported, not retried; the grace window decides what
// happens next.
func (t *NotificationTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing

	occ, err := t.reminders.GetByID(ctx, t.payload.OccurrenceID)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to re-check occurrence: %w", err)
	}
	if occ.Status != domain.OccurrenceStatusPendingConfirmation {
		t.status = TaskStatusSkipped
		t.logger.Debug("occurrence no longer pending, reminder not sent", "status", occ.Status)
		return nil
	}

	msg := notify.Message{
		PatientID:    occ.PatientID,
		OccurrenceID: occ.ID,
		Message:      reminderText(t.payload.Description, occ.DueAt),
	}
	if err := t.sender.Send(ctx, msg); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to send reminder: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("reminder sent")
	return nil
}

func reminderText(description string, dueAt time.Time) string {
	if description == "" {
		return fmt.Sprintf("You have a care task due at %s UTC", dueAt.UTC().Format("15:04"))
	}
	return fmt.Sprintf("Reminder: %s (due %s UTC)", description, dueAt.UTC().Format("15:04"))
}
