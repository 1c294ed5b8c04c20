package schedule

import "time"

// DefaultBlackoutDays is the rolling window that forbids last-minute edits:
// today plus the next three calendar days.
const DefaultBlackoutDays = 3

// BlackoutWindow blocks grid edits whose next occurrence lands too close to
// now. The boundary is day-granular: the whole calendar day is blocked,
// never individual times within it.
type BlackoutWindow struct {
	Days int
}

// NewBlackoutWindow builds a window; non-positive days fall back to the
// default.
func NewBlackoutWindow(days int) BlackoutWindow {
	if days <= 0 {
		days = DefaultBlackoutDays
	}
	return BlackoutWindow{Days: days}
}

// Contains reports whether the slot's next weekly occurrence, seen from now
// in the provider's local calendar, falls on today or within the next Days
// calendar days.
func (w BlackoutWindow) Contains(slot Slot, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Weekday()
	delta := (int(slot.DayOfWeek) - int(today) + 7) % 7
	return delta <= w.Days
}
