package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScheduleKind identifies which recurrence variant a Schedule holds.
type ScheduleKind string

// Supported schedule kinds.
const (
	ScheduleKindFixedTime ScheduleKind = "fixed_time"
	ScheduleKindInterval  ScheduleKind = "interval"
	ScheduleKindFrequency ScheduleKind = "frequency"
)

// minutesPerDay bounds both time-of-day values and frequency counts.
const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, invalidSchedule("time of day %q must be HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for constants; it panics on malformed input.
func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		// ALLOW-PANIC: only used with literal values
		panic(err)
	}
	return tod
}

// String renders the value as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Valid reports whether the value lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

// On returns the instant this time of day falls on for the date of day,
// interpreted in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), int(t)/60, int(t)%60, 0, 0, loc)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Schedule is the recurrence governing a plan item. Exactly one variant is
// meaningful, selected by Kind:
//   - FixedTime uses TimesOfDay
//   - Interval uses Period and Anchor
//   - Frequency uses CountPerDay
type Schedule struct {
	Kind        ScheduleKind
	TimesOfDay  []TimeOfDay
	Period      time.Duration
	Anchor      time.Time
	CountPerDay int
}

// FixedTimeSchedule builds a FixedTime schedule.
func FixedTimeSchedule(times ...TimeOfDay) Schedule {
	return Schedule{Kind: ScheduleKindFixedTime, TimesOfDay: times}
}

// IntervalSchedule builds an Interval schedule.
func IntervalSchedule(period time.Duration, anchor time.Time) Schedule {
	return Schedule{Kind: ScheduleKindInterval, Period: period, Anchor: anchor.UTC()}
}

// FrequencySchedule builds a Frequency schedule.
func FrequencySchedule(countPerDay int) Schedule {
	return Schedule{Kind: ScheduleKindFrequency, CountPerDay: countPerDay}
}

// Validate checks the invariants of the selected variant. Every failure wraps
// ErrInvalidSchedule.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleKindFixedTime:
		if len(s.TimesOfDay) == 0 {
			return invalidSchedule("fixed_time requires at least one time of day")
		}
		for i, t := range s.TimesOfDay {
			if !t.Valid() {
				return invalidSchedule("time of day %d is outside a single day", int(t))
			}
			if i > 0 && t <= s.TimesOfDay[i-1] {
				return invalidSchedule("times of day must be strictly ascending (%s after %s)",
					t, s.TimesOfDay[i-1])
			}
		}
	case ScheduleKindInterval:
		if s.Period <= 0 {
			return invalidSchedule("interval period must be positive")
		}
		if s.Anchor.IsZero() {
			return invalidSchedule("interval anchor is required")
		}
	case ScheduleKindFrequency:
		if s.CountPerDay < 1 {
			return invalidSchedule("count per day must be at least 1")
		}
		if s.CountPerDay > minutesPerDay {
			return invalidSchedule("count per day cannot exceed %d", minutesPerDay)
		}
	default:
		return invalidSchedule("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// ScheduleSpec is the wire form of a Schedule as produced by note extraction,
// sent over HTTP, and stored as JSON.
type ScheduleSpec struct {
	Kind        ScheduleKind `json:"kind" yaml:"kind"`
	TimesOfDay  []string     `json:"times_of_day,omitempty" yaml:"times_of_day,omitempty"`
	Period      string       `json:"period,omitempty" yaml:"period,omitempty"`
	Anchor      *time.Time   `json:"anchor,omitempty" yaml:"anchor,omitempty"`
	CountPerDay int          `json:"count_per_day,omitempty" yaml:"count_per_day,omitempty"`
}

// Build converts the spec into a validated Schedule. defaultAnchor is used
// for Interval schedules that omit an anchor.
func (spec ScheduleSpec) Build(defaultAnchor time.Time) (Schedule, error) {
	s := Schedule{Kind: spec.Kind, CountPerDay: spec.CountPerDay}

	switch spec.Kind {
	case ScheduleKindFixedTime:
		for _, raw := range spec.TimesOfDay {
			tod, err := ParseTimeOfDay(raw)
			if err != nil {
				return Schedule{}, err
			}
			s.TimesOfDay = append(s.TimesOfDay, tod)
		}
	case ScheduleKindInterval:
		period, err := time.ParseDuration(spec.Period)
		if err != nil {
			return Schedule{}, invalidSchedule("period %q is not a duration", spec.Period)
		}
		s.Period = period
		s.Anchor = defaultAnchor.UTC()
		if spec.Anchor != nil {
			s.Anchor = spec.Anchor.UTC()
		}
	}

	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Spec converts the Schedule back to its wire form.
func (s Schedule) Spec() ScheduleSpec {
	spec := ScheduleSpec{Kind: s.Kind}
	switch s.Kind {
	case ScheduleKindFixedTime:
		for _, t := range s.TimesOfDay {
			spec.TimesOfDay = append(spec.TimesOfDay, t.String())
		}
	case ScheduleKindInterval:
		anchor := s.Anchor
		spec.Period = s.Period.String()
		spec.Anchor = &anchor
	case ScheduleKindFrequency:
		spec.CountPerDay = s.CountPerDay
	}
	return spec
}

// MarshalJSON implements json.Marshaler using the wire form.
func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Spec())
}

// UnmarshalJSON implements json.Unmarshaler. Stored schedules always carry an
// anchor, so a missing one is reported as invalid.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	var spec ScheduleSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return err
	}
	built, err := spec.Build(time.Time{})
	if err != nil {
		return err
	}
	*s = built
	return nil
}
