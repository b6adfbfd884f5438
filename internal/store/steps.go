package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
)

// ActionableStepStore defines the interface for checklist and plan item persistence.
type ActionableStepStore interface {
	// CreateChecklistItems saves checklist items. All items must pass domain
	// validation; none are stored otherwise.
	CreateChecklistItems(ctx context.Context, items []*domain.ChecklistItem) error

	// CreatePlanItems saves plan items, including their schedules.
	CreatePlanItems(ctx context.Context, items []*domain.PlanItem) error

	// GetChecklistItem retrieves a checklist item by ID.
	// Returns ErrChecklistItemNotFound if it does not exist.
	GetChecklistItem(ctx context.Context, id uuid.UUID) (*domain.ChecklistItem, error)

	// GetPlanItem retrieves a plan item by ID.
	// Returns ErrPlanItemNotFound if it does not exist.
	GetPlanItem(ctx context.Context, id uuid.UUID) (*domain.PlanItem, error)

	// ListActiveChecklist returns the patient's pending checklist items ordered
	// by priority then due time.
	ListActiveChecklist(ctx context.Context, patientID uuid.UUID) ([]*domain.ChecklistItem, error)

	// ListActivePlan returns the patient's active plan items ordered by creation.
	ListActivePlan(ctx context.Context, patientID uuid.UUID) ([]*domain.PlanItem, error)

	// UpdateChecklistStatus moves a checklist item from expected to next.
	// Returns ErrChecklistItemNotFound if the item does not exist and
	// ErrStatusConflict if its status is no longer expected.
	UpdateChecklistStatus(
		ctx context.Context,
		id uuid.UUID,
		expected, next domain.ChecklistStatus,
		at time.Time,
	) error

	// UpdatePlanItem overwrites a plan item's schedule and status.
	// Returns ErrPlanItemNotFound if it does not exist.
	UpdatePlanItem(ctx context.Context, item *domain.PlanItem) error

	// CancelByPatient cancels every active checklist and plan item of the patient
	// and returns the IDs of the cancelled plan items.
	CancelByPatient(ctx context.Context, patientID uuid.UUID, at time.Time) ([]uuid.UUID, error)
}
