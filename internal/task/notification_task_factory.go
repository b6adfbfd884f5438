package task

import (
	"log/slog"

	"github.com/phrazzld/careminder/internal/events"
	"github.com/phrazzld/careminder/internal/notify"
	"github.com/phrazzld/careminder/internal/store"
)

// NotificationTaskFactory creates NotificationTask instances
type NotificationTaskFactory struct {
	reminders store.ReminderStateStore
	sender    notify.Sender
	logger    *slog.Logger
}

// NewNotificationTaskFactory creates a new factory for NotificationTasks
func NewNotificationTaskFactory(
	reminders store.ReminderStateStore,
	sender notify.Sender,
	logger *slog.Logger,
) *NotificationTaskFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationTaskFactory{
		reminders: reminders,
		sender:    sender,
		logger:    logger.With("component", "notification_task_factory"),
	}
}

// CreateTask creates a NotificationTask from an occurrence.dispatched event
func (f *NotificationTaskFactory) CreateTask(event *events.Event) (Task, error) {
	var p events.OccurrencePayload
	if err := event.UnmarshalPayload(&p); err != nil {
		return nil, err
	}
	return NewNotificationTask(NotificationPayload{
		OccurrenceID: p.OccurrenceID,
		PatientID:    event.PatientID,
		Description:  p.Description,
		DueAt:        p.DueAt,
	}, f.reminders, f.sender, f.logger)
}
