package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicHandler struct{}

func (panicHandler) HandleEvent(context.Context, *Event) error {
	panic("queue gone")
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	newEvent := func(t *testing.T) *Event {
		event, err := NewEvent(TypeOccurrenceDispatched, uuid.New(), OccurrencePayload{OccurrenceID: uuid.New()})
		require.NoError(t, err)
		return event
	}

	t.Run("no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t)))
	})

	t.Run("every handler receives the event", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event := newEvent(t)
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Same(t, event, handler1.LastEvent)
		assert.Same(t, event, handler2.LastEvent)
	})

	t.Run("failures are joined and do not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		errFirst := errors.New("first")
		errSecond := errors.New("second")
		first := &MockEventHandler{HandlerError: errFirst}
		ok := &MockEventHandler{}
		second := &MockEventHandler{HandlerError: errSecond}
		emitter.RegisterHandler(first)
		emitter.RegisterHandler(ok)
		emitter.RegisterHandler(second)

		err := emitter.EmitEvent(context.Background(), newEvent(t))

		assert.ErrorIs(t, err, errFirst)
		assert.ErrorIs(t, err, errSecond)
		assert.Equal(t, 1, ok.HandledCount)
		assert.Equal(t, 1, second.HandledCount)
	})

	t.Run("a panicking handler is isolated", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		after := &MockEventHandler{}
		emitter.RegisterHandler(panicHandler{})
		emitter.RegisterHandler(after)

		var err error
		assert.NotPanics(t, func() { err = emitter.EmitEvent(context.Background(), newEvent(t)) })
		assert.ErrorContains(t, err, "panicked: queue gone")
		assert.Equal(t, 1, after.HandledCount)
	})
}

func TestAuditLogHandler(t *testing.T) {
	log, buf := logger.GetTestLogger(t)
	handler := NewAuditLogHandler(log)
	patientID := uuid.New()

	missed, err := NewEvent(TypeOccurrenceMissed, patientID, OccurrencePayload{OccurrenceID: uuid.New()})
	require.NoError(t, err)
	superseded, err := NewEvent(TypeNoteSuperseded, patientID, NoteSupersededPayload{NoteID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, handler.HandleEvent(context.Background(), missed))
	require.NoError(t, handler.HandleEvent(context.Background(), superseded))

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, TypeOccurrenceMissed, entries[0]["event_type"])
	assert.Equal(t, "INFO", entries[1]["level"])
	assert.Equal(t, patientID.String(), entries[1]["patient_id"])
	assert.Equal(t, "audit", entries[1]["component"])
}
