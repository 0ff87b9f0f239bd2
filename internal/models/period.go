package models

import "time"

// NextMonth returns the calendar month following t.
func NextMonth(t time.Time) (year, month int) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	next := first.AddDate(0, 1, 0)
	return next.Year(), int(next.Month())
}

// ComparePeriods returns -1, 0 or 1 depending on whether (y1, m1) is before,
// equal to or after (y2, m2).
func ComparePeriods(y1, m1, y2, m2 int) int {
	switch {
	case y1 < y2 || (y1 == y2 && m1 < m2):
		return -1
	case y1 == y2 && m1 == m2:
		return 0
	default:
		return 1
	}
}

// ValidPeriod reports whether year and month describe a real calendar month.
func ValidPeriod(year, month int) bool {
	return year >= 1970 && year <= 9999 && month >= 1 && month <= 12
}
