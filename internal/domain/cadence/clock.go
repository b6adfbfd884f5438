package cadence

import (
	"fmt"
	"time"

	"github.com/phrazzld/careminder/internal/domain"
)

// ErrUnknownKind is returned when a schedule's kind does not match the
// operation, or is not a kind the clock knows. It wraps domain.ErrInvalidSchedule.
var ErrUnknownKind = fmt.Errorf("%w: unsupported schedule kind", domain.ErrInvalidSchedule)

// Clock computes the due times a schedule produces. It holds no state beyond its
// Params and performs no I/O.
type Clock interface {
	// FixedTime returns the schedule's times of day on ref's date that are not
	// earlier than ref.
	FixedTime(s domain.Schedule, ref time.Time) ([]time.Time, error)

	// NextInterval returns the single next interval due time not before ref.
	NextInterval(s domain.Schedule, ref time.Time) (time.Time, error)

	// Frequency spreads remaining due times evenly over [windowStart, windowEnd).
	Frequency(remaining int, windowStart, windowEnd time.Time) []time.Time

	// Remaining dispatches on the schedule kind and returns what is still due in
	// ref's period, given the plan item's occurrence history.
	Remaining(s domain.Schedule, ref time.Time, history []*domain.Occurrence) ([]time.Time, error)

	// Day returns the bounds of ref's calendar day.
	Day(ref time.Time) (start, end time.Time)

	// Window returns the frequency spacing window for ref: [max(ref, dayStart), dayEnd).
	Window(ref time.Time) (start, end time.Time)

	// NextPeriodStart returns the start of the day following ref's.
	NextPeriodStart(ref time.Time) time.Time
}

type defaultClock struct {
	params *Params
}

var _ Clock = (*defaultClock)(nil)

// NewDefaultClock creates a clock over UTC days.
func NewDefaultClock() Clock {
	return &defaultClock{params: NewDefaultParams()}
}

// NewClockWithParams creates a clock with custom parameters.
func NewClockWithParams(params *Params) Clock {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultClock{params: params}
}

func (c *defaultClock) FixedTime(s domain.Schedule, ref time.Time) ([]time.Time, error) {
	if s.Kind != domain.ScheduleKindFixedTime {
		return nil, ErrUnknownKind
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return fixedTimeDue(s.TimesOfDay, ref, c.params.Location), nil
}

func (c *defaultClock) NextInterval(s domain.Schedule, ref time.Time) (time.Time, error) {
	if s.Kind != domain.ScheduleKindInterval {
		return time.Time{}, ErrUnknownKind
	}
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}
	return nextIntervalDue(s.Anchor, s.Period, ref), nil
}

func (c *defaultClock) Frequency(remaining int, windowStart, windowEnd time.Time) []time.Time {
	return frequencyDue(remaining, windowStart, windowEnd)
}

func (c *defaultClock) Remaining(
	s domain.Schedule,
	ref time.Time,
	history []*domain.Occurrence,
) ([]time.Time, error) {
	switch s.Kind {
	case domain.ScheduleKindFixedTime:
		return c.FixedTime(s, ref)
	case domain.ScheduleKindInterval:
		next, err := c.NextInterval(s, ref)
		if err != nil {
			return nil, err
		}
		return []time.Time{next}, nil
	case domain.ScheduleKindFrequency:
		if err := s.Validate(); err != nil {
			return nil, err
		}
		dayStart, dayEnd := c.Day(ref)
		remaining := s.CountPerDay - fulfilledWithin(history, dayStart, dayEnd)
		start, end := c.Window(ref)
		return frequencyDue(remaining, start, end), nil
	default:
		return nil, ErrUnknownKind
	}
}

func (c *defaultClock) Day(ref time.Time) (time.Time, time.Time) {
	start := startOfDay(ref, c.params.Location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (c *defaultClock) Window(ref time.Time) (time.Time, time.Time) {
	midnight := startOfDay(ref, c.params.Location)
	start := midnight.Add(c.params.DayStart)
	end := midnight.Add(c.params.DayEnd)
	if c.params.DayEnd >= 24*time.Hour {
		// Calendar end of day, which is not always midnight+24h across DST changes.
		end = midnight.AddDate(0, 0, 1)
	}
	if ref.After(start) {
		start = ref
	}
	return start.UTC(), end.UTC()
}

func (c *defaultClock) NextPeriodStart(ref time.Time) time.Time {
	return startOfDay(ref, c.params.Location).AddDate(0, 0, 1).UTC()
}
