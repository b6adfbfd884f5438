package cadence

import (
	"fmt"
	"strings"
	"time"
)

// Params defines the calendar the clock computes against.
type Params struct {
	// Location defines where a day starts and ends.
	Location *time.Location

	// DayStart and DayEnd bound the window, measured from midnight, over which
	// frequency-based occurrences are spread. DayEnd of 24h means end of day.
	DayStart time.Duration
	DayEnd   time.Duration
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance
type ParamsConfig struct {
	// Location name as understood by time.LoadLocation, e.g. "UTC" or "Europe/Berlin"
	Location string

	// Day window bounds in "HH:MM" form; "24:00" is accepted for DayEnd
	DayStart string
	DayEnd   string
}

// NewDefaultParams returns UTC days with frequency occurrences spread over the
// whole day.
func NewDefaultParams() *Params {
	return &Params{
		Location: time.UTC,
		DayStart: 0,
		DayEnd:   24 * time.Hour,
	}
}

// NewParams creates a Params instance from configuration, falling back to the
// defaults for empty fields.
func NewParams(config ParamsConfig) (*Params, error) {
	params := NewDefaultParams()

	if config.Location != "" {
		loc, err := time.LoadLocation(config.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid location %q: %w", config.Location, err)
		}
		params.Location = loc
	}

	if config.DayStart != "" {
		start, err := ParseDayOffset(config.DayStart)
		if err != nil {
			return nil, err
		}
		params.DayStart = start
	}

	if config.DayEnd != "" {
		end, err := ParseDayOffset(config.DayEnd)
		if err != nil {
			return nil, err
		}
		params.DayEnd = end
	}

	if params.DayStart >= params.DayEnd {
		return nil, fmt.Errorf("day start %s must be before day end %s", config.DayStart, config.DayEnd)
	}

	return params, nil
}

// ParseDayOffset parses "HH:MM" into an offset from midnight. "24:00" is the
// only value allowed past 23:59.
func ParseDayOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid day offset %q: must be HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
