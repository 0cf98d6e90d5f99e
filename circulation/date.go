package circulation

import (
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ToDate returns the calendar date of t in t's own location, as midnight UTC.
// Borrow and due dates are whole days, the time of day never matters.
func ToDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// OverdueDays returns the whole days between dueDate and today, or 0 if the item is not yet overdue.
// Days are counted on Unix seconds, which don't saturate like time.Duration does beyond ~292 years.
func OverdueDays(dueDate, today time.Time) int {
	days := (ToDate(today).Unix() - ToDate(dueDate).Unix()) / secondsPerDay
	if days < 0 {
		return 0
	}

	return int(days)
}
