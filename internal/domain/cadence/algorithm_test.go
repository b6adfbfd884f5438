package cadence

import (
	"testing"
	"time"

	"github.com/phrazzld/careminder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 10, hh, mm, 0, 0, time.UTC)
}

func TestFixedTimeDue(t *testing.T) {
	t.Parallel()

	times := []domain.TimeOfDay{
		domain.MustTimeOfDay("08:00"),
		domain.MustTimeOfDay("14:00"),
		domain.MustTimeOfDay("20:00"),
	}

	testCases := []struct {
		name     string
		ref      time.Time
		expected []time.Time
	}{
		{name: "before all", ref: at(6, 0), expected: []time.Time{at(8, 0), at(14, 0), at(20, 0)}},
		{name: "between", ref: at(9, 0), expected: []time.Time{at(14, 0), at(20, 0)}},
		{name: "equal to a time is still due", ref: at(14, 0), expected: []time.Time{at(14, 0), at(20, 0)}},
		{name: "all passed", ref: at(21, 0), expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, fixedTimeDue(times, tc.ref, time.UTC))
		})
	}
}

func TestNextIntervalDue(t *testing.T) {
	t.Parallel()

	anchor := at(0, 0)
	period := 6 * time.Hour

	testCases := []struct {
		name     string
		ref      time.Time
		expected time.Time
	}{
		{name: "ref before anchor", ref: anchor.Add(-time.Hour), expected: anchor},
		{name: "ref at anchor", ref: anchor, expected: anchor},
		{name: "ref on a boundary", ref: at(12, 0), expected: at(12, 0)},
		{name: "ref between boundaries", ref: at(6, 10), expected: at(12, 0)},
		{name: "ref just after boundary", ref: at(18, 0).Add(time.Second), expected: at(0, 0).Add(24 * time.Hour)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := nextIntervalDue(anchor, period, tc.ref)
			assert.Equal(t, tc.expected, got)
			assert.False(t, got.Before(tc.ref))
			assert.Zero(t, got.Sub(anchor)%period)
		})
	}
}

func TestNextIntervalDue_DistantAnchor(t *testing.T) {
	t.Parallel()

	anchor := time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)

	got := nextIntervalDue(anchor, time.Hour, at(6, 10))

	assert.Equal(t, at(7, 0), got)
}

func TestFrequencyDue(t *testing.T) {
	t.Parallel()

	t.Run("three over a day lands on slot midpoints", func(t *testing.T) {
		t.Parallel()
		ref := at(0, 0)
		got := frequencyDue(3, ref, ref.Add(24*time.Hour))
		assert.Equal(t, []time.Time{at(4, 0), at(12, 0), at(20, 0)}, got)
	})

	t.Run("evenly spaced and inside the window", func(t *testing.T) {
		t.Parallel()
		start := at(14, 31)
		end := at(0, 0).Add(24 * time.Hour)
		got := frequencyDue(4, start, end)
		require.Len(t, got, 4)
		step := got[1].Sub(got[0])
		for i := range got {
			assert.False(t, got[i].Before(start))
			assert.True(t, got[i].Before(end))
			if i > 0 {
				assert.Equal(t, step, got[i].Sub(got[i-1]))
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		start, end := at(10, 0), at(22, 0)
		assert.Equal(t, frequencyDue(5, start, end), frequencyDue(5, start, end))
	})

	t.Run("microsecond precision", func(t *testing.T) {
		t.Parallel()
		start := at(10, 0)
		got := frequencyDue(3, start, start.Add(time.Second))
		require.Len(t, got, 3)
		assert.Equal(t, start.Add(166666*time.Microsecond), got[0])
		for _, due := range got {
			assert.Zero(t, due.Nanosecond()%int(time.Microsecond))
		}
	})

	t.Run("nothing when no count or no window", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, frequencyDue(0, at(1, 0), at(2, 0)))
		assert.Empty(t, frequencyDue(-1, at(1, 0), at(2, 0)))
		assert.Empty(t, frequencyDue(2, at(2, 0), at(2, 0)))
		assert.Empty(t, frequencyDue(2, at(3, 0), at(2, 0)))
	})
}

func TestFulfilledWithin(t *testing.T) {
	t.Parallel()

	history := []*domain.Occurrence{
		{DueAt: at(8, 0), Status: domain.OccurrenceStatusFulfilled},
		{DueAt: at(14, 0), Status: domain.OccurrenceStatusMissed},
		{DueAt: at(20, 0), Status: domain.OccurrenceStatusScheduled},
		{DueAt: at(8, 0).Add(-24 * time.Hour), Status: domain.OccurrenceStatusFulfilled},
	}

	assert.Equal(t, 1, fulfilledWithin(history, at(0, 0), at(0, 0).Add(24*time.Hour)))
}
