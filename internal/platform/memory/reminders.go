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

type reminderStore struct {
	b  *Backend
	tx *state
}

var _ store.ReminderStateStore = (*reminderStore)(nil)

func byDue(a, b *domain.Occurrence) int {
	return cmp.Or(a.DueAt.Compare(b.DueAt), cmp.Compare(a.ID.String(), b.ID.String()))
}

func (s *reminderStore) Put(ctx context.Context, occurrences ...*domain.Occurrence) error {
	for _, o := range occurrences {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}
	return s.b.with(s.tx, func(st *state) error {
		for _, o := range occurrences {
			if _, ok := st.occurrences[o.ID]; ok {
				return fmt.Errorf("%w: occurrence %s", store.ErrDuplicate, o.ID)
			}
			if _, ok := st.plans[o.PlanItemID]; !ok {
				return fmt.Errorf("%w: plan item %s does not exist", store.ErrInvalidEntity, o.PlanItemID)
			}
		}
		for _, o := range occurrences {
			st.occurrences[o.ID] = *copyOccurrence(*o)
		}
		return nil
	})
}

func (s *reminderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Occurrence, error) {
	var out *domain.Occurrence
	err := s.b.with(s.tx, func(st *state) error {
		o, ok := st.occurrences[id]
		if !ok {
			return store.ErrOccurrenceNotFound
		}
		out = copyOccurrence(o)
		return nil
	})
	return out, err
}

func (s *reminderStore) GetDueBefore(
	ctx context.Context,
	status domain.OccurrenceStatus,
	before time.Time,
	limit int,
) ([]*domain.Occurrence, error) {
	var out []*domain.Occurrence
	err := s.b.with(s.tx, func(st *state) error {
		for _, o := range st.occurrences {
			if o.Status == status && !o.DueAt.After(before) {
				out = append(out, copyOccurrence(o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, byDue)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *reminderStore) GetNext(ctx context.Context, planItemID uuid.UUID) (*domain.Occurrence, error) {
	var next *domain.Occurrence
	err := s.b.with(s.tx, func(st *state) error {
		for _, o := range st.occurrences {
			if o.PlanItemID != planItemID || o.Status.Resolved() {
				continue
			}
			if next == nil || byDue(&o, next) < 0 {
				next = copyOccurrence(o)
			}
		}
		if next == nil {
			return store.ErrOccurrenceNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *reminderStore) ListByPlanItem(
	ctx context.Context,
	planItemID uuid.UUID,
	from, to time.Time,
) ([]*domain.Occurrence, error) {
	var out []*domain.Occurrence
	err := s.b.with(s.tx, func(st *state) error {
		for _, o := range st.occurrences {
			if o.PlanItemID == planItemID && !o.DueAt.Before(from) && o.DueAt.Before(to) {
				out = append(out, copyOccurrence(o))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, byDue)
	return out, nil
}

func (s *reminderStore) CompareAndSwapStatus(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.OccurrenceStatus,
	at time.Time,
) error {
	return s.b.with(s.tx, func(st *state) error {
		o, ok := st.occurrences[id]
		if !ok {
			return store.ErrOccurrenceNotFound
		}
		if o.Status != expected {
			return store.ErrStatusConflict
		}
		o.Transition(next, at)
		st.occurrences[id] = o
		return nil
	})
}

func (s *reminderStore) SupersedeByPlanItems(
	ctx context.Context,
	planItemIDs []uuid.UUID,
	at time.Time,
) (int, error) {
	n := 0
	err := s.b.with(s.tx, func(st *state) error {
		for id, o := range st.occurrences {
			if o.Status.Resolved() || !slices.Contains(planItemIDs, o.PlanItemID) {
				continue
			}
			o.Transition(domain.OccurrenceStatusSuperseded, at)
			st.occurrences[id] = o
			n++
		}
		return nil
	})
	return n, err
}
