package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
)

// StepStore implements store.ActionableStepStore.
type StepStore struct {
	db      store.DBTX
	dialect Dialect
	logger  *slog.Logger
}

var _ store.ActionableStepStore = (*StepStore)(nil)

// NewStepStore creates a StepStore over a connection or transaction.
// If logger is nil, a default logger will be used.
func NewStepStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *StepStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "step_store")),
	}
}

const checklistColumns = `id, patient_id, note_id, description, priority, status, due_at, completed_at, created_at, updated_at`

const planColumns = `id, patient_id, note_id, description, schedule, status, duration_days, created_at, updated_at`

// CreateChecklistItems implements store.ActionableStepStore.
func (s *StepStore) CreateChecklistItems(ctx context.Context, items []*domain.ChecklistItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, item := range items {
		if err := item.Validate(); err != nil {
			log.Warn("checklist item validation failed during create",
				slog.String("error", err.Error()),
				slog.String("checklist_item_id", item.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	query := s.dialect.Rebind(`INSERT INTO checklist_items (` + checklistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, item := range items {
		_, err := s.db.ExecContext(ctx, query,
			item.ID,
			item.PatientID,
			item.NoteID,
			item.Description,
			string(item.Priority),
			string(item.Status),
			s.dialect.Time(item.DueAt),
			s.dialect.NullTime(item.CompletedAt),
			s.dialect.Time(item.CreatedAt),
			s.dialect.Time(item.UpdatedAt),
		)
		if err != nil {
			log.Error("failed to create checklist item",
				slog.String("error", err.Error()),
				slog.String("checklist_item_id", item.ID.String()))
			return MapError(err)
		}
	}

	log.Debug("checklist items created", slog.Int("count", len(items)))
	return nil
}

// CreatePlanItems implements store.ActionableStepStore.
func (s *StepStore) CreatePlanItems(ctx context.Context, items []*domain.PlanItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, item := range items {
		if err := item.Validate(); err != nil {
			log.Warn("plan item validation failed during create",
				slog.String("error", err.Error()),
				slog.String("plan_item_id", item.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	query := s.dialect.Rebind(`INSERT INTO plan_items (` + planColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, item := range items {
		schedule, err := json.Marshal(item.Schedule)
		if err != nil {
			return fmt.Errorf("failed to encode schedule: %w", err)
		}

		_, err = s.db.ExecContext(ctx, query,
			item.ID,
			item.PatientID,
			item.NoteID,
			item.Description,
			string(schedule),
			string(item.Status),
			item.DurationDays,
			s.dialect.Time(item.CreatedAt),
			s.dialect.Time(item.UpdatedAt),
		)
		if err != nil {
			log.Error("failed to create plan item",
				slog.String("error", err.Error()),
				slog.String("plan_item_id", item.ID.String()))
			return MapError(err)
		}
	}

	log.Debug("plan items created", slog.Int("count", len(items)))
	return nil
}

// GetChecklistItem implements store.ActionableStepStore.
func (s *StepStore) GetChecklistItem(ctx context.Context, id uuid.UUID) (*domain.ChecklistItem, error) {
	query := s.dialect.Rebind(`SELECT ` + checklistColumns + ` FROM checklist_items WHERE id = ?`)

	item, err := scanChecklistItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrChecklistItemNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get checklist item",
			slog.String("error", err.Error()),
			slog.String("checklist_item_id", id.String()))
		return nil, MapError(err)
	}
	return item, nil
}

// GetPlanItem implements store.ActionableStepStore.
func (s *StepStore) GetPlanItem(ctx context.Context, id uuid.UUID) (*domain.PlanItem, error) {
	query := s.dialect.Rebind(`SELECT ` + planColumns + ` FROM plan_items WHERE id = ?`)

	item, err := scanPlanItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPlanItemNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get plan item",
			slog.String("error", err.Error()),
			slog.String("plan_item_id", id.String()))
		return nil, MapError(err)
	}
	return item, nil
}

// ListActiveChecklist implements store.ActionableStepStore.
func (s *StepStore) ListActiveChecklist(ctx context.Context, patientID uuid.UUID) ([]*domain.ChecklistItem, error) {
	query := s.dialect.Rebind(`SELECT ` + checklistColumns + `
		FROM checklist_items
		WHERE patient_id = ? AND status = ?
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, due_at, id`)

	rows, err := s.db.QueryContext(ctx, query, patientID, string(domain.ChecklistStatusPending))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.ChecklistItem
	for rows.Next() {
		item, err := scanChecklistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// ListActivePlan implements store.ActionableStepStore.
func (s *StepStore) ListActivePlan(ctx context.Context, patientID uuid.UUID) ([]*domain.PlanItem, error) {
	query := s.dialect.Rebind(`SELECT ` + planColumns + `
		FROM plan_items
		WHERE patient_id = ? AND status = ?
		ORDER BY created_at, id`)

	rows, err := s.db.QueryContext(ctx, query, patientID, string(domain.PlanStatusActive))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.PlanItem
	for rows.Next() {
		item, err := scanPlanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

// UpdateChecklistStatus implements store.ActionableStepStore.
func (s *StepStore) UpdateChecklistStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.ChecklistStatus,
	at time.Time,
) error {
	var completedAt *time.Time
	if next == domain.ChecklistStatusDone {
		completedAt = &at
	}

	query := s.dialect.Rebind(`UPDATE checklist_items
		SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?`)

	result, err := s.db.ExecContext(ctx, query,
		string(next),
		s.dialect.Time(at),
		s.dialect.NullTime(completedAt),
		id,
		string(expected),
	)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrStatusConflict); err != nil {
		if _, getErr := s.GetChecklistItem(ctx, id); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

// UpdatePlanItem implements store.ActionableStepStore.
func (s *StepStore) UpdatePlanItem(ctx context.Context, item *domain.PlanItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	schedule, err := json.Marshal(item.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	query := s.dialect.Rebind(`UPDATE plan_items
		SET schedule = ?, status = ?, updated_at = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		string(schedule),
		string(item.Status),
		s.dialect.Time(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrPlanItemNotFound)
}

// CancelByPatient implements store.ActionableStepStore.
func (s *StepStore) CancelByPatient(ctx context.Context, patientID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	checklistQuery := s.dialect.Rebind(`UPDATE checklist_items
		SET status = ?, updated_at = ?
		WHERE patient_id = ? AND status = ?`)

	if _, err := s.db.ExecContext(ctx, checklistQuery,
		string(domain.ChecklistStatusCancelled),
		s.dialect.Time(at),
		patientID,
		string(domain.ChecklistStatusPending),
	); err != nil {
		return nil, MapError(err)
	}

	planQuery := s.dialect.Rebind(`UPDATE plan_items
		SET status = ?, updated_at = ?
		WHERE patient_id = ? AND status = ?
		RETURNING id`)

	rows, err := s.db.QueryContext(ctx, planQuery,
		string(domain.PlanStatusCancelled),
		s.dialect.Time(at),
		patientID,
		string(domain.PlanStatusActive),
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan plan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	log.Debug("cancelled active steps",
		slog.String("patient_id", patientID.String()),
		slog.Int("plan_items", len(ids)))
	return ids, nil
}

func scanChecklistItem(row rowScanner) (*domain.ChecklistItem, error) {
	var (
		item                        domain.ChecklistItem
		priority, status            string
		dueAt, createdAt, updatedAt nullTime
		completedAt                 nullTime
	)

	err := row.Scan(
		&item.ID,
		&item.PatientID,
		&item.NoteID,
		&item.Description,
		&priority,
		&status,
		&dueAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Priority = domain.Priority(priority)
	item.Status = domain.ChecklistStatus(status)
	item.DueAt = dueAt.Time
	item.CompletedAt = completedAt.Ptr()
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	return &item, nil
}

func scanPlanItem(row rowScanner) (*domain.PlanItem, error) {
	var (
		item                 domain.PlanItem
		schedule             []byte
		status               string
		createdAt, updatedAt nullTime
	)

	err := row.Scan(
		&item.ID,
		&item.PatientID,
		&item.NoteID,
		&item.Description,
		&schedule,
		&status,
		&item.DurationDays,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(schedule, &item.Schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule of plan item %s: %w", item.ID, err)
	}
	item.Status = domain.PlanStatus(status)
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	return &item, nil
}
