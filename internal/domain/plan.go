package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanStatus represents the lifecycle state of a recurring task.
type PlanStatus string

// Possible plan status values. Completed is reached when a plan item with a
// duration runs out; cancelled only through supersession.
const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCancelled PlanStatus = "cancelled"
	PlanStatusCompleted PlanStatus = "completed"
)

// PlanItem is a recurring actionable task governed by a Schedule. It owns its
// occurrences.
type PlanItem struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	NoteID       uuid.UUID  `json:"note_id"`
	Description  string     `json:"description"`
	Schedule     Schedule   `json:"schedule"`
	Status       PlanStatus `json:"status"`
	DurationDays int        `json:"duration_days,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewPlanItem creates an active plan item. durationDays of zero means the
// plan has no end.
func NewPlanItem(
	patientID, noteID uuid.UUID,
	description string,
	schedule Schedule,
	durationDays int,
	now time.Time,
) (*PlanItem, error) {
	now = now.UTC()
	item := &PlanItem{
		ID:           uuid.New(),
		PatientID:    patientID,
		NoteID:       noteID,
		Description:  strings.TrimSpace(description),
		Schedule:     schedule,
		Status:       PlanStatusActive,
		DurationDays: durationDays,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the PlanItem has valid data, including its schedule.
func (p *PlanItem) Validate() error {
	if p.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if p.PatientID == uuid.Nil {
		return NewValidationError("patient_id", "cannot be empty", ErrInvalidID)
	}
	if p.NoteID == uuid.Nil {
		return NewValidationError("note_id", "cannot be empty", ErrInvalidID)
	}
	if p.Description == "" {
		return NewValidationError("description", "cannot be empty", ErrEmptyDescription)
	}
	if p.DurationDays < 0 {
		return NewValidationError("duration_days", "cannot be negative", ErrValidation)
	}
	switch p.Status {
	case PlanStatusActive, PlanStatusCancelled, PlanStatusCompleted:
	default:
		return NewValidationError("status", "is not a plan status", ErrInvalidStatus)
	}
	return p.Schedule.Validate()
}

// EndsAt returns when the plan stops producing occurrences, or the zero time
// for open-ended plans.
func (p *PlanItem) EndsAt() time.Time {
	if p.DurationDays == 0 {
		return time.Time{}
	}
	return p.CreatedAt.AddDate(0, 0, p.DurationDays)
}

// ExpiredAt reports whether the plan has run its course by t.
func (p *PlanItem) ExpiredAt(t time.Time) bool {
	end := p.EndsAt()
	return !end.IsZero() && !t.Before(end)
}

// IsActive reports whether the plan still schedules occurrences.
func (p *PlanItem) IsActive() bool {
	return p.Status == PlanStatusActive
}
