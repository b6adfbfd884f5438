package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/careminder/internal/events"
)

// TaskFactory creates a task from an event.
type TaskFactory interface {
	CreateTask(event *events.Event) (Task, error)
}

// TaskFactoryEventHandler implements the events.EventHandler interface
// to turn events of one type into tasks on a queue.
type TaskFactoryEventHandler struct {
	eventType   string
	taskFactory TaskFactory
	queue       TaskQueueWriter
	logger      *slog.Logger
}

// NewTaskFactoryEventHandler creates a new event handler that uses the given
// factory for events of eventType and enqueues the resulting tasks.
func NewTaskFactoryEventHandler(
	eventType string,
	taskFactory TaskFactory,
	queue TaskQueueWriter,
	logger *slog.Logger,
) *TaskFactoryEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskFactoryEventHandler{
		eventType:   eventType,
		taskFactory: taskFactory,
		queue:       queue,
		logger:      logger.With("component", "task_factory_event_handler"),
	}
}

// HandleEvent creates and enqueues a task. Enqueueing never blocks: a full
// queue is reported as an error and the event is dropped.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != h.eventType {
		return nil
	}

	task, err := h.taskFactory.CreateTask(event)
	if err != nil {
		h.logger.Error("failed to create task", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.queue.Enqueue(task); err != nil {
		h.logger.Warn("failed to enqueue task",
			"error", err,
			"task_id", task.ID(),
			"event_id", event.ID)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	h.logger.Debug("task enqueued for event",
		"task_id", task.ID(),
		"event_id", event.ID,
		"event_type", event.Type)
	return nil
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)
