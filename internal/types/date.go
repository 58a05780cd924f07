package types

import (
	"time"
)

// NextBillingPeriod returns the start of the billing period following the
// one starting at start. Month arithmetic is clamped so a period anchored
// on Jan 31 rolls to Feb 28/29 instead of spilling into March.
func NextBillingPeriod(start time.Time) time.Time {
	return AddClampedDate(start, 0, 1, 0)
}

// BillingCycleEnd returns the inclusive end of a one month billing cycle
// starting at start, i.e. start plus one month minus one day.
func BillingCycleEnd(start time.Time) time.Time {
	return AddClampedDate(start, 0, 1, 0).AddDate(0, 0, -1)
}

// AddClampedDate behaves like time.AddDate but clamps the day of month to
// the last valid day of the target month instead of normalizing forward.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// If we move beyond December, it adjusts correctly,
	// for example adding 2 months to November will land on January next year.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d + days
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
}
