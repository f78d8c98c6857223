package generic

import (
	"time"
)

// =============================================================================
// DATE HELPERS - all dates are UTC calendar days
// =============================================================================

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DaysBetween(from, to time.Time) int {
	return int(StartOfDay(to).Sub(StartOfDay(from)).Hours() / 24)
}

func SameDay(a, b time.Time) bool { return StartOfDay(a).Equal(StartOfDay(b)) }

func StartOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func DaysInMonth(year int, month time.Month) int { return EndOfMonth(year, month).Day() }

// ClipDay returns the given day of a month, clipped to the month's last day
// (day 31 in February becomes the 28th or 29th).
func ClipDay(year int, month time.Month, day int) time.Time {
	// normalise month overflow first (month 13 -> January next year)
	first := StartOfMonth(year, month)
	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClipped adds months without time.AddDate's overflow into the
// following month (Jan 31 + 1 month = Feb 28/29, not Mar 3).
func AddMonthsClipped(t time.Time, months int) time.Time {
	t = t.UTC()
	clipped := ClipDay(t.Year(), t.Month()+time.Month(months), t.Day())
	return time.Date(clipped.Year(), clipped.Month(), clipped.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// MonthsBetween counts whole calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	if b.Day() < a.Day() && b.Day() < DaysInMonth(b.Year(), b.Month()) {
		months--
	}
	return months
}
