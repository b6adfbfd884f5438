package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/store"
)

type stepStore struct {
	b  *Backend
	tx *state
}

var _ store.ActionableStepStore = (*stepStore)(nil)

var priorityRank = map[domain.Priority]int{
	domain.PriorityHigh:   0,
	domain.PriorityMedium: 1,
	domain.PriorityLow:    2,
}

func (s *stepStore) CreateChecklistItems(ctx context.Context, items []*domain.ChecklistItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	return s.b.with(s.tx, func(st *state) error {
		for _, item := range items {
			if _, ok := st.checklist[item.ID]; ok {
				return fmt.Errorf("%w: checklist item %s", store.ErrDuplicate, item.ID)
			}
		}
		for _, item := range items {
			st.checklist[item.ID] = *copyChecklist(*item)
		}
		return nil
	})
}

func (s *stepStore) CreatePlanItems(ctx context.Context, items []*domain.PlanItem) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	return s.b.with(s.tx, func(st *state) error {
		for _, item := range items {
			if _, ok := st.plans[item.ID]; ok {
				return fmt.Errorf("%w: plan item %s", store.ErrDuplicate, item.ID)
			}
		}
		for _, item := range items {
			st.plans[item.ID] = *copyPlan(*item)
		}
		return nil
	})
}

func (s *stepStore) GetChecklistItem(ctx context.Context, id uuid.UUID) (*domain.ChecklistItem, error) {
	var out *domain.ChecklistItem
	err := s.b.with(s.tx, func(st *state) error {
		item, ok := st.checklist[id]
		if !ok {
			return store.ErrChecklistItemNotFound
		}
		out = copyChecklist(item)
		return nil
	})
	return out, err
}

func (s *stepStore) GetPlanItem(ctx context.Context, id uuid.UUID) (*domain.PlanItem, error) {
	var out *domain.PlanItem
	err := s.b.with(s.tx, func(st *state) error {
		item, ok := st.plans[id]
		if !ok {
			return store.ErrPlanItemNotFound
		}
		out = copyPlan(item)
		return nil
	})
	return out, err
}

func (s *stepStore) ListActiveChecklist(ctx context.Context, patientID uuid.UUID) ([]*domain.ChecklistItem, error) {
	var out []*domain.ChecklistItem
	err := s.b.with(s.tx, func(st *state) error {
		for _, item := range st.checklist {
			if item.PatientID == patientID && item.Status == domain.ChecklistStatusPending {
				out = append(out, copyChecklist(item))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *domain.ChecklistItem) int {
		return cmp.Or(
			cmp.Compare(priorityRank[a.Priority], priorityRank[b.Priority]),
			a.DueAt.Compare(b.DueAt),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out, err
}

func (s *stepStore) ListActivePlan(ctx context.Context, patientID uuid.UUID) ([]*domain.PlanItem, error) {
	var out []*domain.PlanItem
	err := s.b.with(s.tx, func(st *state) error {
		for _, item := range st.plans {
			if item.PatientID == patientID && item.Status == domain.PlanStatusActive {
				out = append(out, copyPlan(item))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *domain.PlanItem) int {
		return cmp.Or(
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out, err
}

func (s *stepStore) UpdateChecklistStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.ChecklistStatus,
	at time.Time,
) error {
	return s.b.with(s.tx, func(st *state) error {
		item, ok := st.checklist[id]
		if !ok {
			return store.ErrChecklistItemNotFound
		}
		if item.Status != expected {
			return store.ErrStatusConflict
		}
		at = at.UTC()
		item.Status = next
		item.UpdatedAt = at
		if next == domain.ChecklistStatusDone {
			item.CompletedAt = &at
		}
		st.checklist[id] = item
		return nil
	})
}

func (s *stepStore) UpdatePlanItem(ctx context.Context, item *domain.PlanItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return s.b.with(s.tx, func(st *state) error {
		existing, ok := st.plans[item.ID]
		if !ok {
			return store.ErrPlanItemNotFound
		}
		existing.Schedule = item.Schedule
		existing.Status = item.Status
		existing.UpdatedAt = item.UpdatedAt
		st.plans[item.ID] = *copyPlan(existing)
		return nil
	})
}

func (s *stepStore) CancelByPatient(ctx context.Context, patientID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.b.with(s.tx, func(st *state) error {
		at = at.UTC()
		for id, item := range st.checklist {
			if item.PatientID == patientID && item.Status == domain.ChecklistStatusPending {
				item.Status = domain.ChecklistStatusCancelled
				item.UpdatedAt = at
				st.checklist[id] = item
			}
		}
		for id, item := range st.plans {
			if item.PatientID == patientID && item.Status == domain.PlanStatusActive {
				item.Status = domain.PlanStatusCancelled
				item.UpdatedAt = at
				st.plans[id] = item
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}
