// Package memory implements store.Backend in process memory. It backs the
// default single-node deployment and the service and dispatcher tests.
package memory

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/store"
)

type state struct {
	checklist   map[uuid.UUID]domain.ChecklistItem
	plans       map[uuid.UUID]domain.PlanItem
	occurrences map[uuid.UUID]domain.Occurrence
}

func newState() *state {
	return &state{
		checklist:   make(map[uuid.UUID]domain.ChecklistItem),
		plans:       make(map[uuid.UUID]domain.PlanItem),
		occurrences: make(map[uuid.UUID]domain.Occurrence),
	}
}

func (s *state) clone() *state {
	return &state{
		checklist:   maps.Clone(s.checklist),
		plans:       maps.Clone(s.plans),
		occurrences: maps.Clone(s.occurrences),
	}
}

// Backend keeps all entities in maps guarded by a single mutex. A transaction
// holds the mutex for its whole duration and works on a copy of the state,
// which replaces the live state on commit. Stores obtained from Stores() must
// not be used inside RunInTx.
type Backend struct {
	mu     sync.Mutex
	state  *state
	fault  error
	logger *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New creates an empty backend.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		state:  newState(),
		logger: logger.With(slog.String("component", "memory_store")),
	}
}

// FailWith makes every subsequent operation return err until called with nil.
// Tests use it to simulate an unreachable store.
func (b *Backend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fault = err
}

// Stores implements store.Backend.
func (b *Backend) Stores() store.Stores {
	return store.Stores{
		Steps:     &stepStore{b: b},
		Reminders: &reminderStore{b: b},
	}
}

// RunInTx implements store.Transactor.
func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault != nil {
		return b.fault
	}

	working := b.state.clone()
	tx := store.Stores{
		Steps:     &stepStore{b: b, tx: working},
		Reminders: &reminderStore{b: b, tx: working},
	}

	if err := fn(ctx, tx); err != nil {
		b.logger.Debug("rolled back transaction due to error", slog.String("error", err.Error()))
		return err
	}

	b.state = working
	return nil
}

// Ping implements store.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fault
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return nil
}

// with runs fn against the transaction state when tx is set, or against the
// live state under the mutex otherwise.
func (b *Backend) with(tx *state, fn func(s *state) error) error {
	if tx != nil {
		return fn(tx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault != nil {
		return b.fault
	}
	return fn(b.state)
}

func copyPlan(p domain.PlanItem) *domain.PlanItem {
	p.Schedule.TimesOfDay = slices.Clone(p.Schedule.TimesOfDay)
	return &p
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyOccurrence(o domain.Occurrence) *domain.Occurrence {
	o.DispatchedAt = copyPtr(o.DispatchedAt)
	o.FulfilledAt = copyPtr(o.FulfilledAt)
	o.ResolvedAt = copyPtr(o.ResolvedAt)
	return &o
}

func copyChecklist(c domain.ChecklistItem) *domain.ChecklistItem {
	c.CompletedAt = copyPtr(c.CompletedAt)
	return &c
}
