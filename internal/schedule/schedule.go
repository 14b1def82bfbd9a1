// Package schedule evaluates recurrence rules against calendar dates.
// All functions are pure and side-effect free; statefulness such as the
// once-per-year gate for yearly items lives with the caller.
package schedule

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/budget-tracker/internal/domain"
)

// IsDue reports whether the item fires on the given date.
//
// Daily items are always due. Weekly items are due when the weekday matches.
// Monthly and yearly items are due when the day of month matches; for yearly
// the caller must additionally check that the item has not already fired in
// the current calendar year (via LastApplied), because this evaluator holds
// no state.
func IsDue(item *domain.RecurringItem, date civil.Date) (bool, error) {
	if err := item.Validate(); err != nil {
		return false, err
	}

	switch item.Frequency {
	case domain.FrequencyDaily:
		return true, nil
	case domain.FrequencyWeekly:
		return weekday(date) == item.DayOfWeek, nil
	case domain.FrequencyMonthly, domain.FrequencyYearly:
		return date.Day == item.DayOfMonth, nil
	}
	// Validate rejects unknown frequencies; unreachable.
	return false, nil
}

// CountOccurrences returns how many dates in [start, end] the item fires on.
// Both endpoints are inclusive; start must not be after end, otherwise
// ErrInvalidRange is returned.
//
// Monthly items contribute zero occurrences in months shorter than their day
// of month (a rule on the 31st skips February entirely; there is no clamping
// to the last day). Yearly items count at most one occurrence per range.
func CountOccurrences(item *domain.RecurringItem, start, end civil.Date) (int, error) {
	if err := item.Validate(); err != nil {
		return 0, err
	}
	if start.After(end) {
		return 0, fmt.Errorf("%w: %s > %s", domain.ErrInvalidRange, start, end)
	}

	days := end.DaysSince(start) + 1

	switch item.Frequency {
	case domain.FrequencyDaily:
		return days, nil

	case domain.FrequencyWeekly:
		// Distance from start to the first matching weekday, then one
		// occurrence per full week that still fits in the range.
		offset := (item.DayOfWeek - weekday(start) + 7) % 7
		if offset >= days {
			return 0, nil
		}
		return (days-offset-1)/7 + 1, nil

	case domain.FrequencyMonthly:
		return countMonthlyMatches(item.DayOfMonth, start, end, 0), nil

	case domain.FrequencyYearly:
		return countMonthlyMatches(item.DayOfMonth, start, end, 1), nil
	}
	return 0, nil
}

// countMonthlyMatches counts calendar dates in [start, end] whose day of
// month equals dom, walking month by month. Months with fewer days than dom
// contribute nothing. A positive limit caps the total.
func countMonthlyMatches(dom int, start, end civil.Date, limit int) int {
	count := 0
	year, month := start.Year, start.Month
	for year < end.Year || (year == end.Year && month <= end.Month) {
		if dom <= daysInMonth(year, month) {
			d := civil.Date{Year: year, Month: month, Day: dom}
			if !d.Before(start) && !d.After(end) {
				count++
				if limit > 0 && count == limit {
					return count
				}
			}
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return count
}

// weekday returns the day of week for d with 0 = Sunday, matching the
// convention stored on recurring items.
func weekday(d civil.Date) int {
	return int(d.In(time.UTC).Weekday())
}

// daysInMonth returns the number of days in the given month, accounting for
// leap years. Day 0 of the following month is the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
