package grouping

import (
	"github.com/m-mizutani/goerr/v2"
)

// HourRange is a named half-open hour-of-day interval [Start, End). A range
// whose End is before its Start wraps past midnight.
type HourRange struct {
	Name  string `koanf:"name" yaml:"name"`
	Start int    `koanf:"start" yaml:"start"`
	End   int    `koanf:"end" yaml:"end"`
}

// Contains reports whether hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// DurationRange is a named half-open interval [Min, Max) of seconds. A zero Max
// leaves the range open-ended.
type DurationRange struct {
	Name string  `koanf:"name" yaml:"name"`
	Min  float64 `koanf:"min" yaml:"min"`
	Max  float64 `koanf:"max" yaml:"max"`
}

// Contains reports whether seconds falls inside the range.
func (r DurationRange) Contains(seconds float64) bool {
	if seconds < r.Min {
		return false
	}
	return r.Max <= 0 || seconds < r.Max
}

// DefaultHourRanges covers the whole day.
func DefaultHourRanges() []HourRange {
	return []HourRange{
		{Name: "Morning", Start: 5, End: 12},
		{Name: "Afternoon", Start: 12, End: 17},
		{Name: "Evening", Start: 17, End: 21},
		{Name: "Night", Start: 21, End: 5},
	}
}

// DefaultDurationRanges covers every non-negative duration.
func DefaultDurationRanges() []DurationRange {
	return []DurationRange{
		{Name: "Quick Notes", Min: 0, Max: 120},
		{Name: "Standard", Min: 120, Max: 600},
		{Name: "Long Form", Min: 600},
	}
}

// Ranges are tried in configured order; the first match wins.
func firstHourMatch(ranges []HourRange, hour int) (int, bool) {
	for i, r := range ranges {
		if r.Contains(hour) {
			return i, true
		}
	}
	return 0, false
}

func firstDurationMatch(ranges []DurationRange, seconds float64) (int, bool) {
	for i, r := range ranges {
		if r.Contains(seconds) {
			return i, true
		}
	}
	return 0, false
}

func validateHourRanges(ranges []HourRange) error {
	for _, r := range ranges {
		if Slug(r.Name) == "" {
			return goerr.Wrap(ErrInvalidOption, "time of day range needs a name")
		}
		if r.Start < 0 || r.Start > 23 || r.End < 0 || r.End > 24 || r.Start == r.End {
			return goerr.Wrap(ErrInvalidOption, "invalid time of day range",
				goerr.V("name", r.Name), goerr.V("start", r.Start), goerr.V("end", r.End))
		}
	}
	return nil
}

func validateDurationRanges(ranges []DurationRange) error {
	for _, r := range ranges {
		if Slug(r.Name) == "" {
			return goerr.Wrap(ErrInvalidOption, "duration range needs a name")
		}
		if r.Min < 0 || (r.Max > 0 && r.Max <= r.Min) {
			return goerr.Wrap(ErrInvalidOption, "invalid duration range",
				goerr.V("name", r.Name), goerr.V("min", r.Min), goerr.V("max", r.Max))
		}
	}
	return nil
}
