// Package schedule owns the weekly recurring availability grid and every
// mutation path into it: opens, closes, and emergency cancellations.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clinicops/scheduling-engine/internal/strikes"
	"github.com/clinicops/scheduling-engine/internal/tier"
)

// Grid boundaries: 20-minute slots from 07:00 up to the 22:00 close, so the
// last slot starts at 21:40.
const (
	slotStepMinutes  = 20
	gridOpenMinutes  = 7 * 60
	gridCloseMinutes = 22 * 60
)

// ErrInvalidSlot marks a slot outside the fixed weekly grid.
var ErrInvalidSlot = errors.New("schedule: invalid slot")

// Slot is one recurring weekly availability unit. Identity is the
// (day, time) pair; open/closed state lives in the grid, not here.
type Slot struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Time      string       `json:"time"`
}

// ParseTime converts the HH:MM label to minutes since midnight.
func (s Slot) ParseTime() (int, error) {
	parts := strings.SplitN(s.Time, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSlot, s.Time)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSlot, s.Time)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSlot, s.Time)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidSlot, s.Time)
	}
	return hour*60 + minute, nil
}

// Validate checks the slot sits on the 20-minute grid inside opening hours.
func (s Slot) Validate() error {
	if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
		return fmt.Errorf("%w: day %d", ErrInvalidSlot, s.DayOfWeek)
	}
	minutes, err := s.ParseTime()
	if err != nil {
		return err
	}
	if minutes%slotStepMinutes != 0 {
		return fmt.Errorf("%w: %s is off the %d-minute grid", ErrInvalidSlot, s.Time, slotStepMinutes)
	}
	if minutes < gridOpenMinutes || minutes >= gridCloseMinutes {
		return fmt.Errorf("%w: %s outside opening hours", ErrInvalidSlot, s.Time)
	}
	return nil
}

// Period maps the slot time to its tier-policy day segment. Mornings run to
// noon, afternoons to 18:00, evenings to close.
func (s Slot) Period() tier.Period {
	minutes, err := s.ParseTime()
	if err != nil {
		return tier.PeriodMorning
	}
	switch {
	case minutes < 12*60:
		return tier.PeriodMorning
	case minutes < 18*60:
		return tier.PeriodAfternoon
	default:
		return tier.PeriodEvening
	}
}

// Ref converts the slot to its strike-ledger reference form.
func (s Slot) Ref() strikes.SlotRef {
	return strikes.SlotRef{DayOfWeek: int(s.DayOfWeek), Time: s.Time}
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s", s.DayOfWeek, s.Time)
}

// ValidateAll checks a batch and rejects duplicates within the same call.
func ValidateAll(slots []Slot) error {
	if len(slots) == 0 {
		return fmt.Errorf("%w: empty slot list", ErrInvalidSlot)
	}
	seen := make(map[Slot]bool, len(slots))
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate slot %s", ErrInvalidSlot, s)
		}
		seen[s] = true
	}
	return nil
}

// SortSlots orders slots by day then time, for stable payloads and audit
// entries.
func SortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return slots[i].Time < slots[j].Time
	})
}
