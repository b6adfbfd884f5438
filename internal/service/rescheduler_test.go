package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/domain/cadence"
	"github.com/phrazzld/careminder/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dueTimes(occs []*domain.Occurrence) []time.Time {
	out := make([]time.Time, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.DueAt)
	}
	return out
}

func TestRescheduler_Seed(t *testing.T) {
	t.Run("fixed time seeds what is left of today", func(t *testing.T) {
		f := newFixture(t, at(9, 0))
		plan := f.addPlan(t, domain.FixedTimeSchedule(
			domain.MustTimeOfDay("08:00"), domain.MustTimeOfDay("20:00")), at(9, 0))

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Seed(ctx, tx, plan, at(9, 0))
			return err
		})

		assert.Equal(t, []time.Time{at(20, 0)}, dueTimes(created))
	})

	t.Run("fixed time after the last slot seeds tomorrow", func(t *testing.T) {
		f := newFixture(t, at(21, 0))
		plan := f.addPlan(t, domain.FixedTimeSchedule(
			domain.MustTimeOfDay("08:00"), domain.MustTimeOfDay("20:00")), at(21, 0))

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Seed(ctx, tx, plan, at(21, 0))
			return err
		})

		assert.Equal(t, []time.Time{at(32, 0), at(44, 0)}, dueTimes(created))
	})

	t.Run("frequency spreads the whole day", func(t *testing.T) {
		f := newFixture(t, at(0, 0))
		plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Seed(ctx, tx, plan, at(0, 0))
			return err
		})

		assert.Equal(t, []time.Time{at(4, 0), at(12, 0), at(20, 0)}, dueTimes(created))
	})

	t.Run("interval seeds a single occurrence", func(t *testing.T) {
		f := newFixture(t, at(0, 1))
		plan := f.addPlan(t, domain.IntervalSchedule(6*time.Hour, at(0, 0)), at(0, 1))

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Seed(ctx, tx, plan, at(0, 1))
			return err
		})
		assert.Equal(t, []time.Time{at(6, 0)}, dueTimes(created))

		// a second seed finds the pending occurrence and adds nothing
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Seed(ctx, tx, plan, at(0, 2))
			return err
		})
		assert.Empty(t, created)
	})

	t.Run("seeding twice is idempotent", func(t *testing.T) {
		f := newFixture(t, at(9, 0))
		plan := f.addPlan(t, domain.FrequencySchedule(4), at(9, 0))

		for range 2 {
			f.inTx(t, func(ctx context.Context, tx store.Stores) error {
				_, err := f.resched.Seed(ctx, tx, plan, at(9, 0))
				return err
			})
		}
		assert.Len(t, f.occurrencesOf(t, plan.ID), 4)
	})

	t.Run("inactive plans are left alone", func(t *testing.T) {
		f := newFixture(t, at(9, 0))
		plan := f.addPlan(t, domain.FrequencySchedule(2), at(9, 0))
		plan.Status = domain.PlanStatusCancelled

		f.inTx(t, func(ctx context.Context, tx store.Stores) error {
			created, err := f.resched.Seed(ctx, tx, plan, at(9, 0))
			assert.Empty(t, created)
			return err
		})
	})
}

func TestRescheduler_HandleMiss_Frequency(t *testing.T) {
	f := newFixture(t, at(14, 31))
	plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))
	f.addOccurrence(t, plan, at(8, 0), domain.OccurrenceStatusFulfilled)
	missed := f.addOccurrence(t, plan, at(14, 0), domain.OccurrenceStatusMissed)
	f.addOccurrence(t, plan, at(20, 0), domain.OccurrenceStatusScheduled)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(14, 31))
		return err
	})

	require.Len(t, created, 1)
	due := created[0].DueAt
	assert.False(t, due.Before(at(14, 31)), "compensation must not be in the past: %s", due)
	assert.True(t, due.Before(at(24, 0)), "compensation must stay within today: %s", due)
	assert.Equal(t, at(14, 31).Add((at(24, 0).Sub(at(14, 31)))/2), due)

	// same inputs again: the shortfall is already covered
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(14, 31))
		return err
	})
	assert.Empty(t, created)
	assert.Len(t, unresolvedOf(f.occurrencesOf(t, plan.ID)), 2)
}

func TestRescheduler_HandleMiss_FrequencyWithoutPendingSlots(t *testing.T) {
	f := newFixture(t, at(14, 31))
	plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))
	f.addOccurrence(t, plan, at(8, 0), domain.OccurrenceStatusFulfilled)
	missed := f.addOccurrence(t, plan, at(14, 0), domain.OccurrenceStatusMissed)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(14, 31))
		return err
	})

	require.Len(t, created, 2)
	assert.True(t, created[0].DueAt.After(at(14, 31)))
	assert.True(t, created[1].DueAt.Before(at(24, 0)))
}

func TestRescheduler_HandleMiss_FrequencyShortfallNotCarriedOver(t *testing.T) {
	f := newFixture(t, at(20, 31))
	clock := cadence.NewClockWithParams(&cadence.Params{
		Location: time.UTC,
		DayStart: 8 * time.Hour,
		DayEnd:   20 * time.Hour,
	})
	f.resched = NewRescheduler(clock, discardLogger())

	plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))
	missed := f.addOccurrence(t, plan, at(19, 53), domain.OccurrenceStatusMissed)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(20, 31))
		return err
	})

	// today's window is closed; tomorrow gets its full count
	assert.Equal(t, []time.Time{at(34, 0), at(38, 0), at(42, 0)}, dueTimes(created))
	assert.Len(t, unresolvedOf(f.occurrencesOf(t, plan.ID)), 3)

	stored, err := f.backend.Stores().Steps.GetPlanItem(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusActive, stored.Status)
}

func TestRescheduler_HandleMiss_FrequencyAlreadyMet(t *testing.T) {
	f := newFixture(t, at(21, 0))
	plan := f.addPlan(t, domain.FrequencySchedule(2), at(0, 0))
	f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusFulfilled)
	f.addOccurrence(t, plan, at(12, 0), domain.OccurrenceStatusFulfilled)
	missed := f.addOccurrence(t, plan, at(18, 0), domain.OccurrenceStatusMissed)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(21, 0))
		return err
	})

	assert.Equal(t, []time.Time{at(30, 0), at(42, 0)}, dueTimes(created))
}

func TestRescheduler_AcrossMidnight(t *testing.T) {
	lateDose := domain.FixedTimeSchedule(domain.MustTimeOfDay("08:00"), domain.MustTimeOfDay("23:45"))

	t.Run("fixed time miss detected after midnight seeds today", func(t *testing.T) {
		f := newFixture(t, at(24, 16))
		plan := f.addPlan(t, lateDose, at(0, 0))
		f.addOccurrence(t, plan, at(8, 0), domain.OccurrenceStatusFulfilled)
		missed := f.addOccurrence(t, plan, at(23, 45), domain.OccurrenceStatusMissed)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(24, 16))
			return err
		})
		assert.Equal(t, []time.Time{at(32, 0), at(47, 45)}, dueTimes(created))
	})

	t.Run("fixed time check-in after midnight seeds today", func(t *testing.T) {
		f := newFixture(t, at(24, 5))
		plan := f.addPlan(t, lateDose, at(0, 0))
		done := f.addOccurrence(t, plan, at(23, 45), domain.OccurrenceStatusFulfilled)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Advance(ctx, tx, plan, done, at(24, 5))
			return err
		})
		assert.Equal(t, []time.Time{at(32, 0), at(47, 45)}, dueTimes(created))
	})

	t.Run("frequency check-in after midnight seeds today", func(t *testing.T) {
		f := newFixture(t, at(24, 5))
		plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))
		done := f.addOccurrence(t, plan, at(23, 50), domain.OccurrenceStatusFulfilled)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Advance(ctx, tx, plan, done, at(24, 5))
			return err
		})
		require.Len(t, created, 3)
		for _, o := range created {
			assert.True(t, o.DueAt.After(at(24, 5)), o.DueAt)
			assert.True(t, o.DueAt.Before(at(48, 0)), o.DueAt)
		}
	})

	t.Run("frequency miss after midnight is not compensated", func(t *testing.T) {
		f := newFixture(t, at(24, 10))
		plan := f.addPlan(t, domain.FrequencySchedule(3), at(0, 0))
		f.addOccurrence(t, plan, at(4, 0), domain.OccurrenceStatusFulfilled)
		f.addOccurrence(t, plan, at(12, 0), domain.OccurrenceStatusFulfilled)
		missed := f.addOccurrence(t, plan, at(23, 40), domain.OccurrenceStatusMissed)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(24, 10))
			return err
		})
		require.Len(t, created, 3)
		for _, o := range created {
			assert.True(t, o.DueAt.After(at(24, 10)), o.DueAt)
		}
	})

	t.Run("today already scheduled", func(t *testing.T) {
		f := newFixture(t, at(24, 16))
		plan := f.addPlan(t, lateDose, at(0, 0))
		missed := f.addOccurrence(t, plan, at(23, 45), domain.OccurrenceStatusMissed)
		f.addOccurrence(t, plan, at(32, 0), domain.OccurrenceStatusScheduled)

		f.inTx(t, func(ctx context.Context, tx store.Stores) error {
			created, err := f.resched.HandleMiss(ctx, tx, plan, missed, at(24, 16))
			assert.Empty(t, created)
			return err
		})
	})
}

func TestRescheduler_AdvanceEarlyCheckInForTomorrow(t *testing.T) {
	f := newFixture(t, at(22, 0))
	plan := f.addPlan(t, domain.FixedTimeSchedule(domain.MustTimeOfDay("08:00")), at(0, 0))
	done := f.addOccurrence(t, plan, at(32, 0), domain.OccurrenceStatusFulfilled)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.Advance(ctx, tx, plan, done, at(22, 0))
		return err
	})
	assert.Equal(t, []time.Time{at(56, 0)}, dueTimes(created))
}

func TestRescheduler_InsertComparesMicroseconds(t *testing.T) {
	f := newFixture(t, at(9, 0))
	plan := f.addPlan(t, domain.FrequencySchedule(1), at(0, 0))
	f.addOccurrence(t, plan, at(12, 0).Add(1500*time.Nanosecond), domain.OccurrenceStatusScheduled)

	r, ok := f.resched.(*rescheduler)
	require.True(t, ok)
	f.inTx(t, func(ctx context.Context, tx store.Stores) error {
		created, err := r.insert(ctx, tx, plan, []time.Time{at(12, 0).Add(1999 * time.Nanosecond)}, at(9, 0))
		assert.Empty(t, created)
		return err
	})
	assert.Len(t, f.occurrencesOf(t, plan.ID), 1)
}

func TestRescheduler_HandleMiss_Interval(t *testing.T) {
	f := newFixture(t, at(6, 10))
	plan := f.addPlan(t, domain.IntervalSchedule(6*time.Hour, at(0, 0)), at(0, 0))
	missed := f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusMissed)

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(6, 10))
		return err
	})

	assert.Equal(t, []time.Time{at(12, 10)}, dueTimes(created))

	stored, err := f.backend.Stores().Steps.GetPlanItem(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, at(6, 10), stored.Schedule.Anchor)
}

func TestRescheduler_HandleMiss_FixedTime(t *testing.T) {
	fixed := domain.FixedTimeSchedule(domain.MustTimeOfDay("08:00"), domain.MustTimeOfDay("20:00"))

	t.Run("later slot pending: no compensation", func(t *testing.T) {
		f := newFixture(t, at(8, 30))
		plan := f.addPlan(t, fixed, at(0, 0))
		missed := f.addOccurrence(t, plan, at(8, 0), domain.OccurrenceStatusMissed)
		f.addOccurrence(t, plan, at(20, 0), domain.OccurrenceStatusScheduled)

		f.inTx(t, func(ctx context.Context, tx store.Stores) error {
			created, err := f.resched.HandleMiss(ctx, tx, plan, missed, at(8, 30))
			assert.Empty(t, created)
			return err
		})
	})

	t.Run("day exhausted: tomorrow is seeded", func(t *testing.T) {
		f := newFixture(t, at(20, 30))
		plan := f.addPlan(t, fixed, at(0, 0))
		f.addOccurrence(t, plan, at(8, 0), domain.OccurrenceStatusFulfilled)
		missed := f.addOccurrence(t, plan, at(20, 0), domain.OccurrenceStatusMissed)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.HandleMiss(ctx, tx, plan, missed, at(20, 30))
			return err
		})
		assert.Equal(t, []time.Time{at(32, 0), at(44, 0)}, dueTimes(created))
	})
}

func TestRescheduler_Advance(t *testing.T) {
	t.Run("interval keeps its anchor", func(t *testing.T) {
		f := newFixture(t, at(6, 5))
		plan := f.addPlan(t, domain.IntervalSchedule(6*time.Hour, at(0, 0)), at(0, 0))
		done := f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusFulfilled)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Advance(ctx, tx, plan, done, at(6, 5))
			return err
		})
		assert.Equal(t, []time.Time{at(12, 0)}, dueTimes(created))
	})

	t.Run("early interval check-in moves past the fulfilled slot", func(t *testing.T) {
		f := newFixture(t, at(5, 50))
		plan := f.addPlan(t, domain.IntervalSchedule(6*time.Hour, at(0, 0)), at(0, 0))
		done := f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusFulfilled)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Advance(ctx, tx, plan, done, at(5, 50))
			return err
		})
		assert.Equal(t, []time.Time{at(12, 0)}, dueTimes(created))
	})

	t.Run("frequency waits until the day is exhausted", func(t *testing.T) {
		f := newFixture(t, at(12, 5))
		plan := f.addPlan(t, domain.FrequencySchedule(2), at(0, 0))
		done := f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusFulfilled)
		f.addOccurrence(t, plan, at(18, 0), domain.OccurrenceStatusScheduled)

		f.inTx(t, func(ctx context.Context, tx store.Stores) error {
			created, err := f.resched.Advance(ctx, tx, plan, done, at(12, 5))
			assert.Empty(t, created)
			return err
		})
	})

	t.Run("frequency seeds tomorrow after the last check-in", func(t *testing.T) {
		f := newFixture(t, at(18, 5))
		plan := f.addPlan(t, domain.FrequencySchedule(2), at(0, 0))
		f.addOccurrence(t, plan, at(6, 0), domain.OccurrenceStatusFulfilled)
		done := f.addOccurrence(t, plan, at(18, 0), domain.OccurrenceStatusFulfilled)

		var created []*domain.Occurrence
		f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
			created, err = f.resched.Advance(ctx, tx, plan, done, at(18, 5))
			return err
		})
		assert.Equal(t, []time.Time{at(30, 0), at(42, 0)}, dueTimes(created))
	})
}

func TestRescheduler_PlanDuration(t *testing.T) {
	f := newFixture(t, at(9, 0))
	fixed := domain.FixedTimeSchedule(domain.MustTimeOfDay("08:00"), domain.MustTimeOfDay("20:00"))
	plan, err := domain.NewPlanItem(uuid.New(), uuid.New(), "eye drops", fixed, 1, at(9, 0))
	require.NoError(t, err)
	require.NoError(t, f.backend.Stores().Steps.CreatePlanItems(context.Background(), []*domain.PlanItem{plan}))

	var created []*domain.Occurrence
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.Seed(ctx, tx, plan, at(9, 0))
		return err
	})
	require.Equal(t, []time.Time{at(20, 0)}, dueTimes(created))

	// 20:00 done: tomorrow only has 08:00 before the plan ends at 09:00
	done := created[0]
	require.NoError(t, f.backend.Stores().Reminders.CompareAndSwapStatus(context.Background(),
		done.ID, domain.OccurrenceStatusScheduled, domain.OccurrenceStatusFulfilled, at(20, 5)))
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.Advance(ctx, tx, plan, done, at(20, 5))
		return err
	})
	require.Equal(t, []time.Time{at(32, 0)}, dueTimes(created))

	// 08:00 tomorrow done: the next day starts after the end, so the plan completes
	done = created[0]
	require.NoError(t, f.backend.Stores().Reminders.CompareAndSwapStatus(context.Background(),
		done.ID, domain.OccurrenceStatusScheduled, domain.OccurrenceStatusFulfilled, at(32, 5)))
	f.inTx(t, func(ctx context.Context, tx store.Stores) (err error) {
		created, err = f.resched.Advance(ctx, tx, plan, done, at(32, 5))
		return err
	})
	assert.Empty(t, created)

	stored, err := f.backend.Stores().Steps.GetPlanItem(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusCompleted, stored.Status)
}
