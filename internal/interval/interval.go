// Package interval provides pure interval arithmetic and recurrence
// expansion over bookings.
package interval

import (
	"time"

	"reservd/internal/models"
)

// MaxOccurrences caps recurrence expansion. Hitting the cap truncates the
// result; it is not an error.
const MaxOccurrences = 10000

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !(aEnd.Compare(bStart) <= 0 || aStart.Compare(bEnd) >= 0)
}

// Expand materializes a booking into its occurrences that intersect the
// window [from, to). Non-recurring bookings yield at most one occurrence.
// Recurring bookings step forward by 24h (daily) or 168h (weekly) from the
// booking's start, preserving its duration, until the step start reaches the
// window end or the recurrence's until bound, whichever is earlier.
func Expand(b models.Booking, from, to time.Time) []models.Occurrence {
	dur := b.Duration()

	if b.Recurrence.Type == models.RecurrenceNone {
		if Overlaps(b.Start, b.End, from, to) {
			return []models.Occurrence{{Booking: b}}
		}
		return nil
	}

	var step time.Duration
	switch b.Recurrence.Type {
	case models.RecurrenceDaily:
		step = 24 * time.Hour
	case models.RecurrenceWeekly:
		step = 7 * 24 * time.Hour
	default:
		return nil
	}

	limit := to
	if u := b.Recurrence.Until; u != nil && u.Before(limit) {
		limit = *u
	}

	var out []models.Occurrence
	cur := b.Start
	for count := 0; cur.Before(limit) && count < MaxOccurrences; count++ {
		end := cur.Add(dur)
		if Overlaps(cur, end, from, to) {
			occ := models.Occurrence{Booking: b}
			occ.Start = cur
			occ.End = end
			out = append(out, occ)
		}
		cur = cur.Add(step)
	}
	return out
}
