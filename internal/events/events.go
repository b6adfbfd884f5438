package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	// TypeOccurrenceDispatched is emitted when an occurrence moves to
	// pending_confirmation and a reminder should go out.
	TypeOccurrenceDispatched = "occurrence.dispatched"

	// TypeOccurrenceMissed is emitted when the grace window passes without a
	// check-in.
	TypeOccurrenceMissed = "occurrence.missed"

	// TypeNoteSuperseded is emitted when a note result replaces a patient's
	// active steps.
	TypeNoteSuperseded = "note.superseded"
)

// Event is a notification that something happened to a patient's reminders.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// PatientID is the patient the event concerns
	PatientID uuid.UUID `json:"patient_id"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// OccurrencePayload is the payload of occurrence.* events.
type OccurrencePayload struct {
	OccurrenceID uuid.UUID `json:"occurrence_id"`
	PlanItemID   uuid.UUID `json:"plan_item_id"`
	Description  string    `json:"description,omitempty"`
	DueAt        time.Time `json:"due_at"`
	// Rescheduled lists the due times added in response to a miss.
	Rescheduled []time.Time `json:"rescheduled,omitempty"`
}

// NoteSupersededPayload is the payload of note.superseded events.
type NoteSupersededPayload struct {
	NoteID                uuid.UUID `json:"note_id"`
	CancelledPlanItems    int       `json:"cancelled_plan_items"`
	SupersededOccurrences int       `json:"superseded_occurrences"`
	ChecklistItems        int       `json:"checklist_items"`
	PlanItems             int       `json:"plan_items"`
	RejectedPlanItems     int       `json:"rejected_plan_items"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an event of the given type for a patient.
func NewEvent(eventType string, patientID uuid.UUID, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		PatientID: patientID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers ignore event types they do not care about.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *Event) error { return nil }
