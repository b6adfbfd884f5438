package domain

import "github.com/google/uuid"

// NoteResult is the structured output of note extraction for one patient: a
// checklist of one-shot tasks and a plan of recurring ones. Each delivery
// supersedes everything previously active for the patient.
type NoteResult struct {
	PatientID uuid.UUID        `json:"patient_id" yaml:"patient_id"`
	NoteID    uuid.UUID        `json:"note_id" yaml:"note_id"`
	Checklist []ChecklistInput `json:"checklist" yaml:"checklist"`
	Plan      []PlanInput      `json:"plan" yaml:"plan"`
}

// ChecklistInput is one extracted one-shot task.
type ChecklistInput struct {
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// PlanInput is one extracted recurring task.
type PlanInput struct {
	Description  string       `json:"description" yaml:"description"`
	Schedule     ScheduleSpec `json:"schedule" yaml:"schedule"`
	DurationDays int          `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
}
