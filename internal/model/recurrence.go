package model

import (
	"fmt"
	"time"
)

// Frequency represents how often a schedule repeats
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// MonthlyMode selects how a monthly schedule picks its day
type MonthlyMode string

const (
	MonthlyModeDate    MonthlyMode = "date"
	MonthlyModeWeekday MonthlyMode = "weekday"
)

// Ordinal identifies which occurrence of a weekday within a month
type Ordinal string

const (
	OrdinalFirst  Ordinal = "First"
	OrdinalSecond Ordinal = "Second"
	OrdinalThird  Ordinal = "Third"
	OrdinalFourth Ordinal = "Fourth"
	OrdinalLast   Ordinal = "Last"
)

// Index returns the zero-based occurrence index for the ordinal.
// Last returns -1 and is handled separately by callers.
func (o Ordinal) Index() int {
	switch o {
	case OrdinalFirst:
		return 0
	case OrdinalSecond:
		return 1
	case OrdinalThird:
		return 2
	case OrdinalFourth:
		return 3
	default:
		return -1
	}
}

var weekdayTokens = map[string]time.Weekday{
	"Sun": time.Sunday,
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
}

// ParseWeekday converts a weekday token (Sun..Sat) to a time.Weekday
func ParseWeekday(token string) (time.Weekday, error) {
	day, ok := weekdayTokens[token]
	if !ok {
		return 0, fmt.Errorf("unknown weekday token: %s", token)
	}
	return day, nil
}

// TimeOfDay is the wall-clock time a schedule fires at
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses an "HH:MM" string. Empty or malformed input
// falls back to midnight rather than failing the schedule.
func ParseTimeOfDay(s string) TimeOfDay {
	var tod TimeOfDay
	if s == "" {
		return tod
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}
	}
	return TimeOfDay{Hour: h, Minute: m}
}

// String formats the time of day as "HH:MM"
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// RecurrenceRule describes when a schedule should run
type RecurrenceRule struct {
	Frequency   Frequency   `json:"frequency"`
	RepeatEvery int         `json:"repeat_every"`
	TimeOfDay   TimeOfDay   `json:"time_of_day"`
	RunDays     []string    `json:"run_days,omitempty"`
	MonthlyMode MonthlyMode `json:"monthly_mode,omitempty"`
	SpecificDay int         `json:"specific_day,omitempty"`
	Ordinal     Ordinal     `json:"ordinal,omitempty"`
	PatternDay  string      `json:"pattern_day,omitempty"`
}

// Validate rejects misconfigured rules at the boundary so the
// calculator only ever sees well-formed input.
func (r *RecurrenceRule) Validate() error {
	switch r.Frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("unknown frequency: %s", r.Frequency)
	}

	if r.RepeatEvery <= 0 {
		return fmt.Errorf("repeat_every must be greater than 0, got %d", r.RepeatEvery)
	}

	if r.Frequency == FrequencyMonthly && r.RepeatEvery > 12 {
		return fmt.Errorf("monthly repeat_every cannot exceed 12, got %d", r.RepeatEvery)
	}

	if r.Frequency == FrequencyWeekly {
		if len(r.RunDays) == 0 {
			return fmt.Errorf("weekly schedule requires at least one run day")
		}
		for _, token := range r.RunDays {
			if _, err := ParseWeekday(token); err != nil {
				return err
			}
		}
	}

	if r.Frequency == FrequencyMonthly {
		switch r.MonthlyMode {
		case MonthlyModeDate:
			if r.SpecificDay < 1 || r.SpecificDay > 31 {
				return fmt.Errorf("specific_day must be between 1 and 31, got %d", r.SpecificDay)
			}
		case MonthlyModeWeekday:
			if r.Ordinal.Index() < 0 && r.Ordinal != OrdinalLast {
				return fmt.Errorf("unknown ordinal: %s", r.Ordinal)
			}
			if _, err := ParseWeekday(r.PatternDay); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown monthly mode: %s", r.MonthlyMode)
		}
	}

	return nil
}
