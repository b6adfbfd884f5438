package domain

import (
	"time"

	"github.com/google/uuid"
)

// OccurrenceStatus represents where a single reminder is in its lifecycle.
type OccurrenceStatus string

// Possible occurrence status values.
//
// scheduled -> pending_confirmation (dispatched) -> fulfilled | missed
// scheduled | pending_confirmation -> fulfilled (check-in)
// scheduled | pending_confirmation -> superseded (new note)
const (
	OccurrenceStatusScheduled           OccurrenceStatus = "scheduled"
	OccurrenceStatusPendingConfirmation OccurrenceStatus = "pending_confirmation"
	OccurrenceStatusFulfilled           OccurrenceStatus = "fulfilled"
	OccurrenceStatusMissed              OccurrenceStatus = "missed"
	OccurrenceStatusSuperseded          OccurrenceStatus = "superseded"
)

// UnresolvedOccurrenceStatuses lists the statuses an occurrence can still
// leave.
var UnresolvedOccurrenceStatuses = []OccurrenceStatus{
	OccurrenceStatusScheduled,
	OccurrenceStatusPendingConfirmation,
}

// Valid reports whether s is a known status.
func (s OccurrenceStatus) Valid() bool {
	switch s {
	case OccurrenceStatusScheduled,
		OccurrenceStatusPendingConfirmation,
		OccurrenceStatusFulfilled,
		OccurrenceStatusMissed,
		OccurrenceStatusSuperseded:
		return true
	default:
		return false
	}
}

// Resolved reports whether s is terminal.
func (s OccurrenceStatus) Resolved() bool {
	switch s {
	case OccurrenceStatusFulfilled, OccurrenceStatusMissed, OccurrenceStatusSuperseded:
		return true
	default:
		return false
	}
}

// Occurrence is one concrete due instance of a plan item.
type Occurrence struct {
	ID           uuid.UUID        `json:"id"`
	PatientID    uuid.UUID        `json:"patient_id"`
	PlanItemID   uuid.UUID        `json:"plan_item_id"`
	DueAt        time.Time        `json:"due_at"`
	Status       OccurrenceStatus `json:"status"`
	DispatchedAt *time.Time       `json:"dispatched_at,omitempty"`
	FulfilledAt  *time.Time       `json:"fulfilled_at,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewOccurrence creates a scheduled occurrence of plan due at dueAt. The due
// time is kept to microseconds so it survives a round trip through postgres.
func NewOccurrence(plan *PlanItem, dueAt, now time.Time) *Occurrence {
	now = now.UTC()
	return &Occurrence{
		ID:         uuid.New(),
		PatientID:  plan.PatientID,
		PlanItemID: plan.ID,
		DueAt:      dueAt.UTC().Truncate(time.Microsecond),
		Status:     OccurrenceStatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// GraceFrom returns the instant the grace window runs from: the due time, or
// the dispatch time when the occurrence went out late.
func (o *Occurrence) GraceFrom() time.Time {
	if o.DispatchedAt != nil && o.DispatchedAt.After(o.DueAt) {
		return *o.DispatchedAt
	}
	return o.DueAt
}

// Validate checks if the Occurrence has valid data.
func (o *Occurrence) Validate() error {
	if o.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if o.PatientID == uuid.Nil {
		return NewValidationError("patient_id", "cannot be empty", ErrInvalidID)
	}
	if o.PlanItemID == uuid.Nil {
		return NewValidationError("plan_item_id", "cannot be empty", ErrInvalidID)
	}
	if o.DueAt.IsZero() {
		return NewValidationError("due_at", "cannot be empty", ErrValidation)
	}
	if !o.Status.Valid() {
		return NewValidationError("status", "is not an occurrence status", ErrInvalidStatus)
	}
	return nil
}

// Transition applies a status change at the given instant and stamps the
// matching timestamp field. It does not check the previous status; stores do
// that atomically.
func (o *Occurrence) Transition(next OccurrenceStatus, at time.Time) {
	at = at.UTC()
	o.Status = next
	o.UpdatedAt = at
	switch next {
	case OccurrenceStatusPendingConfirmation:
		o.DispatchedAt = &at
	case OccurrenceStatusFulfilled:
		o.FulfilledAt = &at
		o.ResolvedAt = &at
	case OccurrenceStatusMissed, OccurrenceStatusSuperseded:
		o.ResolvedAt = &at
	}
}
