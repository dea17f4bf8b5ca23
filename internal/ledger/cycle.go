package ledger

import "time"

// SameCycle reports whether a and b fall in the same UTC calendar month.
func SameCycle(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// NextCycleStart returns midnight UTC on the first day of the month after t.
func NextCycleStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
