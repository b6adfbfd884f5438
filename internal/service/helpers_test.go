package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/domain/cadence"
	"github.com/phrazzld/careminder/internal/events"
	"github.com/phrazzld/careminder/internal/platform/memory"
	"github.com/phrazzld/careminder/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testDay is the calendar day all scenarios run on.
var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

// at returns hh:mm on testDay.
func at(hh, mm int) time.Time {
	return testDay.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

// fakeNow is a settable clock.
type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeNow) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeNow) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockEventEmitter is a mock implementation of events.EventEmitter.
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fixture struct {
	backend  *memory.Backend
	clock    *fakeNow
	resched  Rescheduler
	locker   *PatientLocker
	emitter  *MockEventEmitter
	steps    StepService
	checkIns CheckInService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	f := &fixture{
		backend: memory.New(discardLogger()),
		clock:   &fakeNow{now: now},
		locker:  NewPatientLocker(),
		emitter: &MockEventEmitter{},
	}
	f.emitter.On("EmitEvent", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.resched = NewRescheduler(cadence.NewDefaultClock(), discardLogger())

	opts := []Option{
		WithClock(f.clock.Now),
		WithLogger(discardLogger()),
		WithRetryConfig(store.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	}

	var err error
	f.steps, err = NewStepService(f.backend, f.resched, f.locker, f.emitter, opts...)
	require.NoError(t, err)
	f.checkIns, err = NewCheckInService(f.backend, f.resched, f.locker, opts...)
	require.NoError(t, err)
	return f
}

// addPlan stores an active plan item created at createdAt.
func (f *fixture) addPlan(t *testing.T, schedule domain.Schedule, createdAt time.Time) *domain.PlanItem {
	t.Helper()

	plan, err := domain.NewPlanItem(uuid.New(), uuid.New(), "walk", schedule, 0, createdAt)
	require.NoError(t, err)
	require.NoError(t, f.backend.Stores().Steps.CreatePlanItems(context.Background(), []*domain.PlanItem{plan}))
	return plan
}

// addOccurrence stores an occurrence of plan due at dueAt and walks it to status.
func (f *fixture) addOccurrence(
	t *testing.T,
	plan *domain.PlanItem,
	dueAt time.Time,
	status domain.OccurrenceStatus,
) *domain.Occurrence {
	t.Helper()
	ctx := context.Background()
	reminders := f.backend.Stores().Reminders

	occ := domain.NewOccurrence(plan, dueAt, dueAt.Add(-time.Hour))
	require.NoError(t, reminders.Put(ctx, occ))

	path := map[domain.OccurrenceStatus][]domain.OccurrenceStatus{
		domain.OccurrenceStatusScheduled:           nil,
		domain.OccurrenceStatusPendingConfirmation: {domain.OccurrenceStatusPendingConfirmation},
		domain.OccurrenceStatusFulfilled:           {domain.OccurrenceStatusFulfilled},
		domain.OccurrenceStatusMissed: {
			domain.OccurrenceStatusPendingConfirmation,
			domain.OccurrenceStatusMissed,
		},
	}[status]
	current := domain.OccurrenceStatusScheduled
	for _, next := range path {
		require.NoError(t, reminders.CompareAndSwapStatus(ctx, occ.ID, current, next, dueAt))
		current = next
	}

	stored, err := reminders.GetByID(ctx, occ.ID)
	require.NoError(t, err)
	return stored
}

// occurrencesOf returns the plan item's occurrences over testDay and the next.
func (f *fixture) occurrencesOf(t *testing.T, planItemID uuid.UUID) []*domain.Occurrence {
	t.Helper()
	out, err := f.backend.Stores().Reminders.ListByPlanItem(
		context.Background(), planItemID, testDay.AddDate(0, 0, -1), testDay.AddDate(0, 0, 3))
	require.NoError(t, err)
	return out
}

func unresolvedOf(occs []*domain.Occurrence) []*domain.Occurrence {
	var out []*domain.Occurrence
	for _, o := range occs {
		if !o.Status.Resolved() {
			out = append(out, o)
		}
	}
	return out
}

// inTx runs fn in a committed transaction.
func (f *fixture) inTx(t *testing.T, fn func(ctx context.Context, tx store.Stores) error) {
	t.Helper()
	require.NoError(t, f.backend.RunInTx(context.Background(), fn))
}
