package cadence

import (
	"math"
	"time"

	"github.com/phrazzld/careminder/internal/domain"
)

// startOfDay returns midnight of ref's calendar date in loc.
func startOfDay(ref time.Time, loc *time.Location) time.Time {
	d := ref.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// fixedTimeDue returns the times of day on ref's date that have not passed.
//
// Parameters:
//   - times: strictly ascending times of day
//   - ref: the reference instant; times earlier than ref are dropped
//   - loc: the location that defines ref's date
//
// Returns:
//   - The remaining due instants in ascending order, possibly empty
//
// Algorithm behavior:
//   - A time equal to ref is still due
//   - Nothing rolls over to the next day; callers ask again with the next
//     day's start as reference
func fixedTimeDue(times []domain.TimeOfDay, ref time.Time, loc *time.Location) []time.Time {
	var due []time.Time
	for _, tod := range times {
		t := tod.On(ref, loc)
		if !t.Before(ref) {
			due = append(due, t.UTC())
		}
	}
	return due
}

// nextIntervalDue returns anchor + k*period for the smallest non-negative k
// such that the result is not before ref.
//
// Parameters:
//   - anchor: the instant the interval counts from
//   - period: a positive duration
//   - ref: the reference instant
//
// Returns:
//   - Exactly one instant; consumers ask again after each resolution
//
// Algorithm behavior:
//   - If ref is at or before anchor, the anchor itself is due (k = 0)
//   - Otherwise k is the ceiling of (ref - anchor) / period
//   - Anchors more than ~292 years back, where time.Sub saturates, are walked
//     forward in whole periods until the gap fits in a Duration
func nextIntervalDue(anchor time.Time, period time.Duration, ref time.Time) time.Time {
	if !ref.After(anchor) {
		return anchor.UTC()
	}

	next := anchor
	for {
		gap := ref.Sub(next)
		next = next.Add(gap / period * period)
		if gap < maxDuration {
			break
		}
	}
	if next.Before(ref) {
		next = next.Add(period)
	}
	return next.UTC()
}

const maxDuration = time.Duration(math.MaxInt64)

// frequencyDue spreads count occurrences evenly across [start, end).
//
// Parameters:
//   - count: how many occurrences are still needed
//   - start: beginning of the window
//   - end: end of the window (exclusive)
//
// Returns:
//   - count instants, each the midpoint of one of count equal slots, or none
//     when count <= 0 or the window is empty
//
// Algorithm behavior:
//   - The result depends only on (count, start, end), so recomputing with the
//     same inputs yields the same spacing
//   - Instants are truncated to microseconds so they compare equal after
//     storage
//   - Using slot midpoints keeps every instant strictly inside the window; a
//     recompute right after a miss never fires immediately
func frequencyDue(count int, start, end time.Time) []time.Time {
	if count <= 0 || !end.After(start) {
		return nil
	}

	slot := end.Sub(start) / time.Duration(count)
	due := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		due = append(due, start.Add(slot*time.Duration(i)+slot/2).UTC().Truncate(time.Microsecond))
	}
	return due
}

// fulfilledWithin counts fulfilled occurrences due inside [start, end).
func fulfilledWithin(history []*domain.Occurrence, start, end time.Time) int {
	n := 0
	for _, o := range history {
		if o.Status != domain.OccurrenceStatusFulfilled {
			continue
		}
		if !o.DueAt.Before(start) && o.DueAt.Before(end) {
			n++
		}
	}
	return n
}
