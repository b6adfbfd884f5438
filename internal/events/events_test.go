package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	patientID := uuid.New()
	payload := OccurrencePayload{
		OccurrenceID: uuid.New(),
		PlanItemID:   uuid.New(),
		Description:  "take blood pressure",
		DueAt:        time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}

	event, err := NewEvent(TypeOccurrenceMissed, patientID, payload)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeOccurrenceMissed, event.Type)
	assert.Equal(t, patientID, event.PatientID)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var decoded OccurrencePayload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, payload.OccurrenceID, decoded.OccurrenceID)
	assert.True(t, payload.DueAt.Equal(decoded.DueAt))
	assert.Empty(t, decoded.Rescheduled)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent(TypeNoteSuperseded, uuid.New(), make(chan int))
	assert.Error(t, err)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	mu sync.Mutex
	// The last event received by this handler
	LastEvent *Event
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestNopEmitter(t *testing.T) {
	event, err := NewEvent(TypeNoteSuperseded, uuid.New(), NoteSupersededPayload{NoteID: uuid.New()})
	require.NoError(t, err)
	assert.NoError(t, NopEmitter{}.EmitEvent(context.Background(), event))
}
