// Package calendar implements the workday arithmetic used for reminder due dates.
//
// Weekends are the only non-working days; there is no holiday calendar.
package calendar

import "time"

// IsWorkday reports whether t falls on Monday through Friday in t's location.
func IsWorkday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// NextWorkdayAtOrAfter returns t when it already falls on a workday, otherwise
// the same wall-clock time on the following Monday.
func NextWorkdayAtOrAfter(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// Due is the next due timestamp for a task with the given interval.
func Due(from time.Time, intervalMinutes int) time.Time {
	return NextWorkdayAtOrAfter(from.Add(time.Duration(intervalMinutes) * time.Minute))
}
