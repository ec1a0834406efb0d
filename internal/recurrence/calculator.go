package recurrence

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/t77yq/report-scheduler/internal/model"
)

const (
	// weeklyHorizonDays bounds the day-by-day scan for weekly rules.
	// Running past it means the rule cannot fire, e.g. an empty day set.
	weeklyHorizonDays = 90

	// monthlyHorizonMonths bounds the number of candidate months a
	// monthly rule will examine before giving up.
	monthlyHorizonMonths = 24
)

// ErrUnsatisfiable is returned when no qualifying instant exists within
// the search horizon. Callers disarm the schedule; this is never a
// process-level failure.
var ErrUnsatisfiable = errors.New("recurrence: no qualifying instant within horizon")

// NextRun computes the next instant a rule fires, strictly after now.
// base is the previously scheduled instant (or the schedule's creation
// time when it has never been armed); advancing from base rather than
// from now keeps late executions from drifting the cadence.
func NextRun(rule model.RecurrenceRule, base, now time.Time) (time.Time, error) {
	switch rule.Frequency {
	case model.FrequencyHourly:
		return nextHourly(rule, base, now), nil
	case model.FrequencyDaily:
		return nextDaily(rule, base, now), nil
	case model.FrequencyWeekly:
		return nextWeekly(rule, base, now)
	case model.FrequencyMonthly:
		if rule.MonthlyMode == model.MonthlyModeWeekday {
			return nextMonthlyWeekday(rule, base, now)
		}
		return nextMonthlyDate(rule, base, now)
	default:
		return time.Time{}, fmt.Errorf("recurrence: unknown frequency %q", rule.Frequency)
	}
}

// at pins a calendar day to the rule's wall-clock time.
func at(day time.Time, tod model.TimeOfDay) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour, tod.Minute, 0, 0, day.Location())
}

func nextHourly(rule model.RecurrenceRule, base, now time.Time) time.Time {
	// Hourly cadence keeps the hour stepping and takes only the minute
	// from the configured time of day.
	candidate := time.Date(base.Year(), base.Month(), base.Day(), base.Hour(),
		rule.TimeOfDay.Minute, 0, 0, base.Location())
	step := time.Duration(rule.RepeatEvery) * time.Hour
	if !candidate.After(now) {
		// Jump near now in one step, then walk the remainder.
		behind := now.Sub(candidate)
		candidate = candidate.Add(behind / step * step)
		for !candidate.After(now) {
			candidate = candidate.Add(step)
		}
	}
	return candidate
}

func nextDaily(rule model.RecurrenceRule, base, now time.Time) time.Time {
	candidate := at(base, rule.TimeOfDay)
	for !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, rule.RepeatEvery)
	}
	return candidate
}

// startOfWeek returns midnight of the Sunday on or before t.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// weeksSince counts whole weeks between two week starts. Rounding
// absorbs the odd hour a DST transition adds or removes.
func weeksSince(anchor, day time.Time) int {
	hours := startOfWeek(day).Sub(anchor).Hours()
	return int(math.Round(hours / (24 * 7)))
}

func nextWeekly(rule model.RecurrenceRule, base, now time.Time) (time.Time, error) {
	runDays := make(map[time.Weekday]bool, len(rule.RunDays))
	for _, token := range rule.RunDays {
		day, err := model.ParseWeekday(token)
		if err != nil {
			return time.Time{}, err
		}
		runDays[day] = true
	}

	anchor := startOfWeek(base)

	start := base
	if now.After(start) {
		start = now
	}
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	for i := 0; i <= weeklyHorizonDays; i++ {
		day := startDay.AddDate(0, 0, i)
		if !runDays[day.Weekday()] {
			continue
		}
		if weeksSince(anchor, day)%rule.RepeatEvery != 0 {
			continue
		}
		candidate := at(day, rule.TimeOfDay)
		if candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, ErrUnsatisfiable
}

// daysIn returns the number of days in the month containing t.
func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func nextMonthlyDate(rule model.RecurrenceRule, base, now time.Time) (time.Time, error) {
	firstOfBase := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, base.Location())

	for i := 0; i < monthlyHorizonMonths; i++ {
		month := firstOfBase.AddDate(0, i*rule.RepeatEvery, 0)
		// Day 31 in a 30-day month, or 29+ in February, clamps to the
		// month's final day instead of spilling into the next month.
		day := rule.SpecificDay
		if last := daysIn(month); day > last {
			day = last
		}
		candidate := time.Date(month.Year(), month.Month(), day,
			rule.TimeOfDay.Hour, rule.TimeOfDay.Minute, 0, 0, month.Location())
		if candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, ErrUnsatisfiable
}

func nextMonthlyWeekday(rule model.RecurrenceRule, base, now time.Time) (time.Time, error) {
	weekday, err := model.ParseWeekday(rule.PatternDay)
	if err != nil {
		return time.Time{}, err
	}

	firstOfBase := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, base.Location())

	for i := 0; i < monthlyHorizonMonths; i++ {
		month := firstOfBase.AddDate(0, i*rule.RepeatEvery, 0)
		matches := weekdaysIn(month, weekday)

		var day time.Time
		if rule.Ordinal == model.OrdinalLast {
			day = matches[len(matches)-1]
		} else {
			idx := rule.Ordinal.Index()
			if idx < 0 || idx >= len(matches) {
				// The requested occurrence does not exist this month;
				// move on rather than erroring out.
				continue
			}
			day = matches[idx]
		}

		candidate := at(day, rule.TimeOfDay)
		if candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, ErrUnsatisfiable
}

// weekdaysIn lists every day in t's month falling on the given weekday.
func weekdaysIn(t time.Time, weekday time.Weekday) []time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	days := make([]time.Time, 0, 5)
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == weekday {
			days = append(days, d)
		}
	}
	return days
}
