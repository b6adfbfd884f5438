package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/events"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
)

// StepService manages the actionable steps derived from a patient's notes.
type StepService interface {
	// SubmitNoteResult replaces everything active for the patient with the
	// steps of result. Prior occurrences are superseded in the same
	// transaction, so none of them is dispatched once this returns.
	//
	// Invalid items are rejected one by one and listed in the report; the
	// rest are persisted. When any plan item was rejected the returned error
	// wraps domain.ErrInvalidSchedule alongside the committed report.
	SubmitNoteResult(ctx context.Context, result domain.NoteResult) (*SubmissionReport, error)

	// ListActiveSteps returns the patient's pending checklist and active plan,
	// each plan item paired with its next unresolved occurrence.
	ListActiveSteps(ctx context.Context, patientID uuid.UUID) (*ActiveSteps, error)
}

// SubmissionReport describes the outcome of a note submission.
type SubmissionReport struct {
	PatientID             uuid.UUID               `json:"patient_id"`
	NoteID                uuid.UUID               `json:"note_id"`
	Checklist             []*domain.ChecklistItem `json:"checklist"`
	Plan                  []*domain.PlanItem      `json:"plan"`
	Occurrences           []*domain.Occurrence    `json:"occurrences"`
	Rejected              []RejectedItem          `json:"rejected,omitempty"`
	CancelledPlanItems    int                     `json:"cancelled_plan_items"`
	SupersededOccurrences int                     `json:"superseded_occurrences"`
}

// RejectedItem identifies an input item that failed validation.
type RejectedItem struct {
	// Kind is "checklist" or "plan".
	Kind        string `json:"kind"`
	Index       int    `json:"index"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// ActiveSteps is a patient's current checklist and plan.
type ActiveSteps struct {
	PatientID uuid.UUID               `json:"patient_id"`
	Checklist []*domain.ChecklistItem `json:"checklist"`
	Plan      []PlanStep              `json:"plan"`
}

// PlanStep is an active plan item with its next unresolved occurrence, if any.
type PlanStep struct {
	*domain.PlanItem
	NextOccurrence *domain.Occurrence `json:"next_occurrence,omitempty"`
}

type stepService struct {
	uow     unitOfWork
	resched Rescheduler
	locker  *PatientLocker
	emitter events.EventEmitter
	opts    options
	logger  *slog.Logger
}

var _ StepService = (*stepService)(nil)

// NewStepService creates a StepService.
// It returns an error if any of the required dependencies are nil.
func NewStepService(
	backend store.Backend,
	resched Rescheduler,
	locker *PatientLocker,
	emitter events.EventEmitter,
	opts ...Option,
) (StepService, error) {
	if backend == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "backend cannot be nil"}
	}
	if resched == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "rescheduler cannot be nil"}
	}
	if locker == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "locker cannot be nil"}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	o := newOptions(opts)
	return &stepService{
		uow:     unitOfWork{backend: backend, retry: o.retry},
		resched: resched,
		locker:  locker,
		emitter: emitter,
		opts:    o,
		logger:  o.logger.With(slog.String("component", "step_service")),
	}, nil
}

func (s *stepService) SubmitNoteResult(
	ctx context.Context,
	result domain.NoteResult,
) (*SubmissionReport, error) {
	if result.PatientID == uuid.Nil || result.NoteID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and note_id are required", ErrInvalidInput)
	}
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("patient_id", result.PatientID.String()),
		slog.String("note_id", result.NoteID.String()),
	)

	unlock := s.locker.Lock(result.PatientID)
	defer unlock()

	now := s.opts.now().UTC()
	checklist, plan, rejected, invalid := s.buildSteps(result, now)

	var report *SubmissionReport
	err := s.uow.run(ctx, func(ctx context.Context, tx store.Stores) error {
		report = &SubmissionReport{
			PatientID: result.PatientID,
			NoteID:    result.NoteID,
			Checklist: checklist,
			Plan:      plan,
			Rejected:  rejected,
		}

		cancelled, err := tx.Steps.CancelByPatient(ctx, result.PatientID, now)
		if err != nil {
			return fmt.Errorf("failed to cancel active steps: %w", err)
		}
		report.CancelledPlanItems = len(cancelled)

		if len(cancelled) > 0 {
			n, err := tx.Reminders.SupersedeByPlanItems(ctx, cancelled, now)
			if err != nil {
				return fmt.Errorf("failed to supersede occurrences: %w", err)
			}
			report.SupersededOccurrences = n
		}

		if len(checklist) > 0 {
			if err := tx.Steps.CreateChecklistItems(ctx, checklist); err != nil {
				return fmt.Errorf("failed to store checklist: %w", err)
			}
		}
		if len(plan) > 0 {
			if err := tx.Steps.CreatePlanItems(ctx, plan); err != nil {
				return fmt.Errorf("failed to store plan: %w", err)
			}
		}

		for _, item := range plan {
			created, err := s.resched.Seed(ctx, tx, item, now)
			if err != nil {
				return fmt.Errorf("failed to seed plan item %s: %w", item.ID, err)
			}
			report.Occurrences = append(report.Occurrences, created...)
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "note submission failed", slog.Any("error", err))
		return nil, NewServiceError("submit_note_result", "failed to apply note result", err)
	}

	log.InfoContext(ctx, "note result applied",
		slog.Int("checklist_items", len(report.Checklist)),
		slog.Int("plan_items", len(report.Plan)),
		slog.Int("occurrences", len(report.Occurrences)),
		slog.Int("rejected", len(report.Rejected)),
		slog.Int("cancelled_plan_items", report.CancelledPlanItems),
		slog.Int("superseded_occurrences", report.SupersededOccurrences))

	s.emit(ctx, result.PatientID, report)

	if len(invalid) > 0 {
		return report, errors.Join(invalid...)
	}
	return report, nil
}

// buildSteps turns the note result into validated entities. Items that fail
// validation are reported and left out; plan item schedule errors are also
// returned so the caller can surface InvalidSchedule.
func (s *stepService) buildSteps(
	result domain.NoteResult,
	now time.Time,
) ([]*domain.ChecklistItem, []*domain.PlanItem, []RejectedItem, []error) {
	var (
		checklist []*domain.ChecklistItem
		plan      []*domain.PlanItem
		rejected  []RejectedItem
		invalid   []error
	)

	for i, in := range result.Checklist {
		item, err := s.buildChecklistItem(result, in, now)
		if err != nil {
			rejected = append(rejected, RejectedItem{
				Kind: "checklist", Index: i, Description: in.Description, Reason: err.Error(),
			})
			continue
		}
		checklist = append(checklist, item)
	}

	for i, in := range result.Plan {
		item, err := s.buildPlanItem(result, in, now)
		if err != nil {
			rejected = append(rejected, RejectedItem{
				Kind: "plan", Index: i, Description: in.Description, Reason: err.Error(),
			})
			if errors.Is(err, domain.ErrInvalidSchedule) {
				invalid = append(invalid, fmt.Errorf("plan item %d: %w", i, err))
			}
			continue
		}
		plan = append(plan, item)
	}

	return checklist, plan, rejected, invalid
}

func (s *stepService) buildChecklistItem(
	result domain.NoteResult,
	in domain.ChecklistInput,
	now time.Time,
) (*domain.ChecklistItem, error) {
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	return domain.NewChecklistItem(result.PatientID, result.NoteID, in.Description, priority, now)
}

func (s *stepService) buildPlanItem(
	result domain.NoteResult,
	in domain.PlanInput,
	now time.Time,
) (*domain.PlanItem, error) {
	schedule, err := in.Schedule.Build(now)
	if err != nil {
		return nil, err
	}
	return domain.NewPlanItem(result.PatientID, result.NoteID, in.Description, schedule, in.DurationDays, now)
}

func (s *stepService) emit(ctx context.Context, patientID uuid.UUID, report *SubmissionReport) {
	event, err := events.NewEvent(events.TypeNoteSuperseded, patientID, events.NoteSupersededPayload{
		NoteID:                report.NoteID,
		CancelledPlanItems:    report.CancelledPlanItems,
		SupersededOccurrences: report.SupersededOccurrences,
		ChecklistItems:        len(report.Checklist),
		PlanItems:             len(report.Plan),
		RejectedPlanItems:     countRejected(report.Rejected, "plan"),
	})
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).WarnContext(ctx, "failed to emit note.superseded",
			slog.Any("error", err))
	}
}

func countRejected(items []RejectedItem, kind string) int {
	n := 0
	for _, r := range items {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (s *stepService) ListActiveSteps(ctx context.Context, patientID uuid.UUID) (*ActiveSteps, error) {
	var steps *ActiveSteps
	err := s.uow.read(ctx, func(ctx context.Context, st store.Stores) error {
		checklist, err := st.Steps.ListActiveChecklist(ctx, patientID)
		if err != nil {
			return err
		}
		plan, err := st.Steps.ListActivePlan(ctx, patientID)
		if err != nil {
			return err
		}

		steps = &ActiveSteps{
			PatientID: patientID,
			Checklist: checklist,
			Plan:      make([]PlanStep, 0, len(plan)),
		}
		for _, item := range plan {
			next, err := st.Reminders.GetNext(ctx, item.ID)
			if err != nil && !store.IsNotFoundError(err) {
				return err
			}
			steps.Plan = append(steps.Plan, PlanStep{PlanItem: item, NextOccurrence: next})
		}
		return nil
	})
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).ErrorContext(ctx, "failed to list active steps",
			slog.String("patient_id", patientID.String()),
			slog.Any("error", err))
		return nil, NewServiceError("list_active_steps", "failed to load active steps", err)
	}
	if steps.Checklist == nil {
		steps.Checklist = []*domain.ChecklistItem{}
	}
	return steps, nil
}
