package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChecklistStatus represents the lifecycle state of a one-time task.
type ChecklistStatus string

// Possible checklist status values. Done and cancelled are terminal.
const (
	ChecklistStatusPending   ChecklistStatus = "pending"
	ChecklistStatusDone      ChecklistStatus = "done"
	ChecklistStatusCancelled ChecklistStatus = "cancelled"
)

// Priority ranks checklist items for presentation.
type Priority string

// Supported priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultChecklistDueIn is how long a patient has to complete a checklist item
// when extraction does not say otherwise.
const DefaultChecklistDueIn = 24 * time.Hour

// ParsePriority normalises a priority string; empty input means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", NewValidationError("priority", "must be high, medium or low", ErrInvalidPriority)
	}
}

// ChecklistItem is a one-time actionable task extracted from a note.
type ChecklistItem struct {
	ID          uuid.UUID       `json:"id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	NoteID      uuid.UUID       `json:"note_id"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Status      ChecklistStatus `json:"status"`
	DueAt       time.Time       `json:"due_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewChecklistItem creates a pending checklist item due DefaultChecklistDueIn
// after now.
func NewChecklistItem(
	patientID, noteID uuid.UUID,
	description string,
	priority Priority,
	now time.Time,
) (*ChecklistItem, error) {
	now = now.UTC()
	item := &ChecklistItem{
		ID:          uuid.New(),
		PatientID:   patientID,
		NoteID:      noteID,
		Description: strings.TrimSpace(description),
		Priority:    priority,
		Status:      ChecklistStatusPending,
		DueAt:       now.Add(DefaultChecklistDueIn),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the ChecklistItem has valid data.
func (c *ChecklistItem) Validate() error {
	if c.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if c.PatientID == uuid.Nil {
		return NewValidationError("patient_id", "cannot be empty", ErrInvalidID)
	}
	if c.NoteID == uuid.Nil {
		return NewValidationError("note_id", "cannot be empty", ErrInvalidID)
	}
	if c.Description == "" {
		return NewValidationError("description", "cannot be empty", ErrEmptyDescription)
	}
	if _, err := ParsePriority(string(c.Priority)); err != nil {
		return err
	}
	switch c.Status {
	case ChecklistStatusPending, ChecklistStatusDone, ChecklistStatusCancelled:
	default:
		return NewValidationError("status", "is not a checklist status", ErrInvalidStatus)
	}
	return nil
}

// IsTerminal reports whether the item can no longer change state.
func (c *ChecklistItem) IsTerminal() bool {
	return c.Status == ChecklistStatusDone || c.Status == ChecklistStatusCancelled
}
