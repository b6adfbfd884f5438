package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
)

// SubmitNoteResultRequest is the body of a note result submission. Item
// content is validated per item by the service so one bad item does not sink
// the note; the tags here only bound the request's shape.
type SubmitNoteResultRequest struct {
	Checklist []ChecklistItemRequest `json:"checklist" validate:"max=200,dive"`
	Plan      []PlanItemRequest      `json:"plan"      validate:"max=200,dive"`
}

// ChecklistItemRequest is one extracted one-shot task.
type ChecklistItemRequest struct {
	Description string `json:"description"        validate:"max=1000"`
	Priority    string `json:"priority,omitempty" validate:"max=16"`
}

// PlanItemRequest is one extracted recurring task.
type PlanItemRequest struct {
	Description  string          `json:"description"             validate:"max=1000"`
	Schedule     ScheduleRequest `json:"schedule"`
	DurationDays int             `json:"duration_days,omitempty" validate:"gte=0,lte=3650"`
}

// ScheduleRequest is the wire form of a plan item's recurrence.
type ScheduleRequest struct {
	Kind        string     `json:"kind"                    validate:"max=32"`
	TimesOfDay  []string   `json:"times_of_day,omitempty"  validate:"max=1440"`
	Period      string     `json:"period,omitempty"        validate:"max=32"`
	Anchor      *time.Time `json:"anchor,omitempty"`
	CountPerDay int        `json:"count_per_day,omitempty"`
}

// toNoteResult converts the request into the domain input for patientID's
// note noteID.
func (r *SubmitNoteResultRequest) toNoteResult(patientID, noteID uuid.UUID) domain.NoteResult {
	result := domain.NoteResult{
		PatientID: patientID,
		NoteID:    noteID,
		Checklist: make([]domain.ChecklistInput, 0, len(r.Checklist)),
		Plan:      make([]domain.PlanInput, 0, len(r.Plan)),
	}
	for _, c := range r.Checklist {
		result.Checklist = append(result.Checklist, domain.ChecklistInput{
			Description: c.Description,
			Priority:    c.Priority,
		})
	}
	for _, p := range r.Plan {
		result.Plan = append(result.Plan, domain.PlanInput{
			Description: p.Description,
			Schedule: domain.ScheduleSpec{
				Kind:        domain.ScheduleKind(p.Schedule.Kind),
				TimesOfDay:  p.Schedule.TimesOfDay,
				Period:      p.Schedule.Period,
				Anchor:      p.Schedule.Anchor,
				CountPerDay: p.Schedule.CountPerDay,
			},
			DurationDays: p.DurationDays,
		})
	}
	return result
}
