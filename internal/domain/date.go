package domain

import "time"

const day = 24 * time.Hour

// StartOfDay truncates t to midnight UTC. Billing dates are calendar days.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays adds n calendar days to the day of t
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, n)
}

// DiffInDays returns the absolute number of whole days between the days of a and b
func DiffInDays(a, b time.Time) int {
	d := StartOfDay(b).Sub(StartOfDay(a))
	if d < 0 {
		d = -d
	}
	return int(d / day)
}

// DatePtr returns a pointer to the day of t
func DatePtr(t time.Time) *time.Time {
	d := StartOfDay(t)
	return &d
}
