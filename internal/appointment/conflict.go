package appointment

import "time"

// Overlaps treats both intervals as half-open, so back-to-back intervals do
// not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// HasConflict reports whether [start, end) overlaps any appointment in
// existing that still occupies its slot.
func HasConflict(start, end time.Time, existing []Appointment) bool {
	for _, a := range existing {
		if !a.Status.Occupies() {
			continue
		}
		if Overlaps(start, end, a.Start, a.End()) {
			return true
		}
	}
	return false
}
