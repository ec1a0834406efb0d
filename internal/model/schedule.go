package model

import (
	"time"
)

// DisarmReason records why a schedule's next run was cleared
type DisarmReason string

const (
	// DisarmReasonPaused means the owner toggled the schedule off
	DisarmReasonPaused DisarmReason = "paused"
	// DisarmReasonUnsatisfiable means the calculator could not find a
	// qualifying instant within its horizon
	DisarmReasonUnsatisfiable DisarmReason = "unsatisfiable"
)

// Schedule represents a recurring report delivery owned by a shop
type Schedule struct {
	ID         string         `json:"id"`
	Shop       string         `json:"shop"`
	Email      string         `json:"email"`
	Enabled    bool           `json:"enabled"`
	Recurrence RecurrenceRule `json:"recurrence"`
	Filter     FilterSpec     `json:"filter"`

	// NextRunAt is the single source of truth for due-ness. Nil means
	// the schedule is not armed: disabled, or its rule is unsatisfiable.
	LastRunAt    *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time   `json:"next_run_at,omitempty"`
	DisarmReason DisarmReason `json:"disarm_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecurrenceBase returns the instant the next occurrence is computed
// from: the pre-execution next run when one exists, otherwise creation
// time. Advancing from the previous scheduled instant keeps late ticks
// from accumulating drift.
func (s *Schedule) RecurrenceBase() time.Time {
	if s.NextRunAt != nil {
		return *s.NextRunAt
	}
	return s.CreatedAt
}

// LookbackWindow returns the [from, to] range of order history one
// occurrence covers, derived from the recurrence frequency.
func (s *Schedule) LookbackWindow(now time.Time) (time.Time, time.Time) {
	n := s.Recurrence.RepeatEvery
	switch s.Recurrence.Frequency {
	case FrequencyHourly:
		return now.Add(-time.Duration(n) * time.Hour), now
	case FrequencyDaily:
		return now.AddDate(0, 0, -n), now
	case FrequencyWeekly:
		return now.AddDate(0, 0, -7*n), now
	case FrequencyMonthly:
		return now.AddDate(0, -n, 0), now
	default:
		return now.AddDate(0, 0, -7), now
	}
}
