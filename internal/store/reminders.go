package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
)

// ReminderStateStore defines the interface for occurrence persistence.
//
// Status changes go through CompareAndSwapStatus so that the dispatcher, the
// check-in path and supersession can race safely: exactly one writer moves an
// occurrence out of a given status.
type ReminderStateStore interface {
	// Put inserts new occurrences.
	Put(ctx context.Context, occurrences ...*domain.Occurrence) error

	// GetByID retrieves an occurrence.
	// Returns ErrOccurrenceNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Occurrence, error)

	// GetDueBefore returns up to limit occurrences in status whose due time is
	// at or before the given instant, earliest first.
	GetDueBefore(
		ctx context.Context,
		status domain.OccurrenceStatus,
		before time.Time,
		limit int,
	) ([]*domain.Occurrence, error)

	// GetNext returns the earliest unresolved occurrence of a plan item.
	// Returns ErrOccurrenceNotFound when none exists.
	GetNext(ctx context.Context, planItemID uuid.UUID) (*domain.Occurrence, error)

	// ListByPlanItem returns the plan item's occurrences due in [from, to),
	// earliest first.
	ListByPlanItem(
		ctx context.Context,
		planItemID uuid.UUID,
		from, to time.Time,
	) ([]*domain.Occurrence, error)

	// CompareAndSwapStatus moves an occurrence from expected to next and stamps
	// the timestamps that go with next.
	// Returns ErrOccurrenceNotFound or ErrStatusConflict.
	CompareAndSwapStatus(
		ctx context.Context,
		id uuid.UUID,
		expected, next domain.OccurrenceStatus,
		at time.Time,
	) error

	// SupersedeByPlanItems marks every unresolved occurrence of the given plan
	// items superseded and returns how many changed.
	SupersedeByPlanItems(ctx context.Context, planItemIDs []uuid.UUID, at time.Time) (int, error)
}

// Stores bundles the stores a unit of work operates on.
type Stores struct {
	Steps     ActionableStepStore
	Reminders ReminderStateStore
}

// Transactor runs fn against transaction-bound stores. Changes made through
// them are committed when fn returns nil and discarded otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}

// Backend is a complete persistence implementation.
type Backend interface {
	Transactor

	// Stores returns stores that operate outside any transaction.
	Stores() Stores

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
