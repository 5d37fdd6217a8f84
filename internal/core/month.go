package core

import "time"

// MonthKeyLayout formats a month bucket key (YYYY-MM).
const MonthKeyLayout = "2006-01"

// StartOfMonth truncates t to 00:00 UTC on the first day of its month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a first-of-month time by n months. The input is normalized
// first so day overflow (e.g. Jan 31 + 1) can never skip a month.
func AddMonths(t time.Time, n int) time.Time {
	return StartOfMonth(t).AddDate(0, n, 0)
}

// MonthKey returns the bucket key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// Window is an inclusive range of first-of-month dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// BoardWindow computes the board range relative to the month containing now.
func BoardWindow(now time.Time, monthsBack, monthsForward int) Window {
	current := StartOfMonth(now)
	return Window{
		Start: AddMonths(current, -monthsBack),
		End:   AddMonths(current, monthsForward),
	}
}

// Contains reports whether t falls within [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Months lists every month of the window in order.
func (w Window) Months() []time.Time {
	var months []time.Time
	for m := w.Start; !m.After(w.End); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// ValidateWindow checks the monthsBack/monthsForward bounds of a board query.
func ValidateWindow(monthsBack, monthsForward int) error {
	if monthsBack < 0 || monthsBack > MaxWindowMonths {
		return NewValidationError("monthsBack", "must be between 0 and 120")
	}
	if monthsForward < 0 || monthsForward > MaxWindowMonths {
		return NewValidationError("monthsForward", "must be between 0 and 120")
	}
	return nil
}
