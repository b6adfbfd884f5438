package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
)

// ReminderStore implements store.ReminderStateStore.
type ReminderStore struct {
	db      store.DBTX
	dialect Dialect
	logger  *slog.Logger
}

var _ store.ReminderStateStore = (*ReminderStore)(nil)

// NewReminderStore creates a ReminderStore over a connection or transaction.
// If logger is nil, a default logger will be used.
func NewReminderStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *ReminderStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "reminder_store")),
	}
}

const occurrenceColumns = `id, patient_id, plan_item_id, due_at, status, dispatched_at, fulfilled_at, resolved_at, created_at, updated_at`

// Put implements store.ReminderStateStore.
func (s *ReminderStore) Put(ctx context.Context, occurrences ...*domain.Occurrence) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, o := range occurrences {
		if err := o.Validate(); err != nil {
			log.Warn("occurrence validation failed during put",
				slog.String("error", err.Error()),
				slog.String("occurrence_id", o.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	query := s.dialect.Rebind(`INSERT INTO occurrences (` + occurrenceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, o := range occurrences {
		_, err := s.db.ExecContext(ctx, query,
			o.ID,
			o.PatientID,
			o.PlanItemID,
			s.dialect.Time(o.DueAt),
			string(o.Status),
			s.dialect.NullTime(o.DispatchedAt),
			s.dialect.NullTime(o.FulfilledAt),
			s.dialect.NullTime(o.ResolvedAt),
			s.dialect.Time(o.CreatedAt),
			s.dialect.Time(o.UpdatedAt),
		)
		if err != nil {
			log.Error("failed to insert occurrence",
				slog.String("error", err.Error()),
				slog.String("occurrence_id", o.ID.String()),
				slog.String("plan_item_id", o.PlanItemID.String()))
			return MapError(err)
		}
	}
	return nil
}

// GetByID implements store.ReminderStateStore.
func (s *ReminderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Occurrence, error) {
	query := s.dialect.Rebind(`SELECT ` + occurrenceColumns + ` FROM occurrences WHERE id = ?`)

	o, err := scanOccurrence(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOccurrenceNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get occurrence",
			slog.String("error", err.Error()),
			slog.String("occurrence_id", id.String()))
		return nil, MapError(err)
	}
	return o, nil
}

// GetDueBefore implements store.ReminderStateStore.
func (s *ReminderStore) GetDueBefore(
	ctx context.Context,
	status domain.OccurrenceStatus,
	before time.Time,
	limit int,
) ([]*domain.Occurrence, error) {
	query := s.dialect.Rebind(`SELECT ` + occurrenceColumns + `
		FROM occurrences
		WHERE status = ? AND due_at <= ?
		ORDER BY due_at, id
		LIMIT ?`)

	return s.list(ctx, query, string(status), s.dialect.Time(before), limit)
}

// GetNext implements store.ReminderStateStore.
func (s *ReminderStore) GetNext(ctx context.Context, planItemID uuid.UUID) (*domain.Occurrence, error) {
	query := s.dialect.Rebind(`SELECT ` + occurrenceColumns + `
		FROM occurrences
		WHERE plan_item_id = ? AND status IN (?, ?)
		ORDER BY due_at, id
		LIMIT 1`)

	o, err := scanOccurrence(s.db.QueryRowContext(ctx, query,
		planItemID,
		string(domain.OccurrenceStatusScheduled),
		string(domain.OccurrenceStatusPendingConfirmation),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOccurrenceNotFound
		}
		return nil, MapError(err)
	}
	return o, nil
}

// ListByPlanItem implements store.ReminderStateStore.
func (s *ReminderStore) ListByPlanItem(
	ctx context.Context,
	planItemID uuid.UUID,
	from, to time.Time,
) ([]*domain.Occurrence, error) {
	query := s.dialect.Rebind(`SELECT ` + occurrenceColumns + `
		FROM occurrences
		WHERE plan_item_id = ? AND due_at >= ? AND due_at < ?
		ORDER BY due_at, id`)

	return s.list(ctx, query, planItemID, s.dialect.Time(from), s.dialect.Time(to))
}

// CompareAndSwapStatus implements store.ReminderStateStore.
func (s *ReminderStore) CompareAndSwapStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.OccurrenceStatus,
	at time.Time,
) error {
	// Transition on a scratch value yields exactly the timestamps next stamps.
	var stamped domain.Occurrence
	stamped.Transition(next, at)

	query := s.dialect.Rebind(`UPDATE occurrences
		SET status = ?,
			updated_at = ?,
			dispatched_at = COALESCE(?, dispatched_at),
			fulfilled_at = COALESCE(?, fulfilled_at),
			resolved_at = COALESCE(?, resolved_at)
		WHERE id = ? AND status = ?`)

	result, err := s.db.ExecContext(ctx, query,
		string(next),
		s.dialect.Time(stamped.UpdatedAt),
		s.dialect.NullTime(stamped.DispatchedAt),
		s.dialect.NullTime(stamped.FulfilledAt),
		s.dialect.NullTime(stamped.ResolvedAt),
		id,
		string(expected),
	)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrStatusConflict); err != nil {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		logger.FromContextOrDefault(ctx, s.logger).Debug("occurrence status changed concurrently",
			slog.String("occurrence_id", id.String()),
			slog.String("expected", string(expected)),
			slog.String("next", string(next)))
		return err
	}
	return nil
}

// SupersedeByPlanItems implements store.ReminderStateStore.
func (s *ReminderStore) SupersedeByPlanItems(
	ctx context.Context,
	planItemIDs []uuid.UUID,
	at time.Time,
) (int, error) {
	if len(planItemIDs) == 0 {
		return 0, nil
	}

	args := []any{
		string(domain.OccurrenceStatusSuperseded),
		s.dialect.Time(at),
		s.dialect.Time(at),
	}
	for _, id := range planItemIDs {
		args = append(args, id)
	}
	args = append(args,
		string(domain.OccurrenceStatusScheduled),
		string(domain.OccurrenceStatusPendingConfirmation),
	)

	query := s.dialect.Rebind(`UPDATE occurrences
		SET status = ?, updated_at = ?, resolved_at = ?
		WHERE plan_item_id IN (` + placeholders(len(planItemIDs)) + `)
		AND status IN (?, ?)`)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (s *ReminderStore) list(ctx context.Context, query string, args ...any) ([]*domain.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query occurrences",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan occurrence: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

func scanOccurrence(row rowScanner) (*domain.Occurrence, error) {
	var (
		o                                     domain.Occurrence
		status                                string
		dueAt, createdAt, updatedAt           nullTime
		dispatchedAt, fulfilledAt, resolvedAt nullTime
	)

	err := row.Scan(
		&o.ID,
		&o.PatientID,
		&o.PlanItemID,
		&dueAt,
		&status,
		&dispatchedAt,
		&fulfilledAt,
		&resolvedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.OccurrenceStatus(status)
	o.DueAt = dueAt.Time
	o.DispatchedAt = dispatchedAt.Ptr()
	o.FulfilledAt = fulfilledAt.Ptr()
	o.ResolvedAt = resolvedAt.Ptr()
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}
