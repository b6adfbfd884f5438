package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
)

// CheckInService records what a patient has done.
type CheckInService interface {
	// CheckIn marks the patient's occurrence fulfilled and schedules what
	// follows it. Returns ErrNotFound when the occurrence does not exist or
	// belongs to another patient, and ErrAlreadyResolved when it was already
	// fulfilled, missed or superseded.
	CheckIn(ctx context.Context, patientID, occurrenceID uuid.UUID) (*domain.Occurrence, error)

	// CompleteChecklistItem marks a pending checklist item done, with the same
	// error contract as CheckIn.
	CompleteChecklistItem(ctx context.Context, patientID, itemID uuid.UUID) (*domain.ChecklistItem, error)

	// GetNextOccurrence returns the earliest unresolved occurrence of the plan
	// item, or nil when there is none. Returns ErrNotFound for unknown plan
	// items.
	GetNextOccurrence(ctx context.Context, planItemID uuid.UUID) (*domain.Occurrence, error)

	// PlanItemOwner returns the patient a plan item belongs to.
	PlanItemOwner(ctx context.Context, planItemID uuid.UUID) (uuid.UUID, error)
}

type checkInService struct {
	uow     unitOfWork
	resched Rescheduler
	locker  *PatientLocker
	opts    options
	logger  *slog.Logger
}

var _ CheckInService = (*checkInService)(nil)

// NewCheckInService creates a CheckInService.
// It returns an error if any of the required dependencies are nil.
func NewCheckInService(
	backend store.Backend,
	resched Rescheduler,
	locker *PatientLocker,
	opts ...Option,
) (CheckInService, error) {
	if backend == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "backend cannot be nil"}
	}
	if resched == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "rescheduler cannot be nil"}
	}
	if locker == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "locker cannot be nil"}
	}

	o := newOptions(opts)
	return &checkInService{
		uow:     unitOfWork{backend: backend, retry: o.retry},
		resched: resched,
		locker:  locker,
		opts:    o,
		logger:  o.logger.With(slog.String("component", "check_in_service")),
	}, nil
}

func (s *checkInService) CheckIn(
	ctx context.Context,
	patientID, occurrenceID uuid.UUID,
) (*domain.Occurrence, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("patient_id", patientID.String()),
		slog.String("occurrence_id", occurrenceID.String()),
	)

	unlock := s.locker.Lock(patientID)
	defer unlock()

	now := s.opts.now().UTC()
	var fulfilled *domain.Occurrence
	err := s.uow.run(ctx, func(ctx context.Context, tx store.Stores) error {
		occ, err := tx.Reminders.GetByID(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if occ.PatientID != patientID {
			return ErrNotFound
		}

		err = tx.Reminders.CompareAndSwapStatus(ctx, occ.ID,
			domain.OccurrenceStatusScheduled, domain.OccurrenceStatusFulfilled, now)
		if errors.Is(err, store.ErrStatusConflict) {
			err = tx.Reminders.CompareAndSwapStatus(ctx, occ.ID,
				domain.OccurrenceStatusPendingConfirmation, domain.OccurrenceStatusFulfilled, now)
		}
		if errors.Is(err, store.ErrStatusConflict) {
			return ErrAlreadyResolved
		}
		if err != nil {
			return err
		}
		occ.Transition(domain.OccurrenceStatusFulfilled, now)

		plan, err := tx.Steps.GetPlanItem(ctx, occ.PlanItemID)
		if err != nil {
			return fmt.Errorf("failed to load plan item: %w", err)
		}
		if _, err := s.resched.Advance(ctx, tx, plan, occ, now); err != nil {
			return fmt.Errorf("failed to advance plan item: %w", err)
		}

		fulfilled = occ
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) || store.IsNotFoundError(err) || errors.Is(err, ErrNotFound) {
			log.DebugContext(ctx, "check-in rejected", slog.Any("error", err))
		} else {
			log.ErrorContext(ctx, "check-in failed", slog.Any("error", err))
		}
		return nil, NewServiceError("check_in", "failed to record check-in", err)
	}

	log.InfoContext(ctx, "occurrence fulfilled", slog.Time("due_at", fulfilled.DueAt))
	return fulfilled, nil
}

func (s *checkInService) CompleteChecklistItem(
	ctx context.Context,
	patientID, itemID uuid.UUID,
) (*domain.ChecklistItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("patient_id", patientID.String()),
		slog.String("checklist_item_id", itemID.String()),
	)

	unlock := s.locker.Lock(patientID)
	defer unlock()

	now := s.opts.now().UTC()
	var done *domain.ChecklistItem
	err := s.uow.run(ctx, func(ctx context.Context, tx store.Stores) error {
		item, err := tx.Steps.GetChecklistItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.PatientID != patientID {
			return ErrNotFound
		}
		err = tx.Steps.UpdateChecklistStatus(ctx, item.ID,
			domain.ChecklistStatusPending, domain.ChecklistStatusDone, now)
		if err != nil {
			return err
		}
		item.Status = domain.ChecklistStatusDone
		item.CompletedAt = &now
		item.UpdatedAt = now
		done = item
		return nil
	})
	if err != nil {
		log.DebugContext(ctx, "checklist completion rejected", slog.Any("error", err))
		return nil, NewServiceError("complete_checklist_item", "failed to complete checklist item", err)
	}

	log.InfoContext(ctx, "checklist item done")
	return done, nil
}

func (s *checkInService) GetNextOccurrence(ctx context.Context, planItemID uuid.UUID) (*domain.Occurrence, error) {
	var next *domain.Occurrence
	err := s.uow.read(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := st.Steps.GetPlanItem(ctx, planItemID); err != nil {
			return err
		}
		occ, err := st.Reminders.GetNext(ctx, planItemID)
		switch {
		case err == nil:
			next = occ
		case !store.IsNotFoundError(err):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, NewServiceError("get_next_occurrence", "failed to load next occurrence", err)
	}
	return next, nil
}

func (s *checkInService) PlanItemOwner(ctx context.Context, planItemID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := s.uow.read(ctx, func(ctx context.Context, st store.Stores) error {
		plan, err := st.Steps.GetPlanItem(ctx, planItemID)
		if err != nil {
			return err
		}
		owner = plan.PatientID
		return nil
	})
	if err != nil {
		return uuid.Nil, NewServiceError("plan_item_owner", "failed to load plan item", err)
	}
	return owner, nil
}
