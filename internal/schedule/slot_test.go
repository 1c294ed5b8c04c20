package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinicops/scheduling-engine/internal/tier"
)

func TestSlotValidate(t *testing.T) {
	tests := []struct {
		name string
		slot Slot
		ok   bool
	}{
		{"first slot of the day", Slot{time.Monday, "07:00"}, true},
		{"last slot of the day", Slot{time.Friday, "21:40"}, true},
		{"mid grid", Slot{time.Wednesday, "14:20"}, true},
		{"before opening", Slot{time.Monday, "06:40"}, false},
		{"at close", Slot{time.Monday, "22:00"}, false},
		{"off grid", Slot{time.Monday, "07:10"}, false},
		{"bad format", Slot{time.Monday, "7:00"}, false},
		{"not a time", Slot{time.Monday, "morning"}, false},
		{"bad day", Slot{time.Weekday(9), "08:00"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSlot)
			}
		})
	}
}

func TestSlotPeriod(t *testing.T) {
	assert.Equal(t, tier.PeriodMorning, Slot{time.Monday, "07:00"}.Period())
	assert.Equal(t, tier.PeriodMorning, Slot{time.Monday, "11:40"}.Period())
	assert.Equal(t, tier.PeriodAfternoon, Slot{time.Monday, "12:00"}.Period())
	assert.Equal(t, tier.PeriodAfternoon, Slot{time.Monday, "17:40"}.Period())
	assert.Equal(t, tier.PeriodEvening, Slot{time.Monday, "18:00"}.Period())
	assert.Equal(t, tier.PeriodEvening, Slot{time.Monday, "21:40"}.Period())
}

func TestValidateAll(t *testing.T) {
	assert.ErrorIs(t, ValidateAll(nil), ErrInvalidSlot)
	assert.ErrorIs(t, ValidateAll([]Slot{{time.Monday, "08:00"}, {time.Monday, "08:00"}}), ErrInvalidSlot)
	assert.NoError(t, ValidateAll([]Slot{{time.Monday, "08:00"}, {time.Monday, "08:20"}}))
}

func TestBlackoutWindow(t *testing.T) {
	w := NewBlackoutWindow(3)
	// Monday 2026-03-02, 09:00 UTC.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		day     time.Weekday
		blocked bool
	}{
		{time.Monday, true},    // today
		{time.Tuesday, true},   // +1
		{time.Wednesday, true}, // +2
		{time.Thursday, true},  // +3
		{time.Friday, false},   // +4
		{time.Saturday, false}, // +5
		{time.Sunday, false},   // +6
	}
	for _, tt := range tests {
		t.Run(tt.day.String(), func(t *testing.T) {
			got := w.Contains(Slot{DayOfWeek: tt.day, Time: "08:00"}, now, time.UTC)
			assert.Equal(t, tt.blocked, got)
		})
	}
}

func TestBlackoutWindowIsDayGranular(t *testing.T) {
	w := NewBlackoutWindow(3)
	// Late Monday evening: Monday slots earlier in the day are still
	// blocked because the whole calendar day is.
	now := time.Date(2026, 3, 2, 21, 30, 0, 0, time.UTC)
	assert.True(t, w.Contains(Slot{time.Monday, "07:00"}, now, time.UTC))
	assert.True(t, w.Contains(Slot{time.Monday, "21:40"}, now, time.UTC))
}

func TestBlackoutWindowUsesProviderCalendar(t *testing.T) {
	w := NewBlackoutWindow(3)
	// 2026-03-06 01:00 UTC is still Thursday 2026-03-05 in Sao Paulo
	// (UTC-3), so Monday sits at delta 4 there and stays editable.
	now := time.Date(2026, 3, 6, 1, 0, 0, 0, time.UTC)
	saoPaulo := time.FixedZone("America/Sao_Paulo", -3*60*60)

	assert.False(t, w.Contains(Slot{time.Monday, "08:00"}, now, saoPaulo))
	assert.True(t, w.Contains(Slot{time.Monday, "08:00"}, now, time.UTC), "in UTC it is already Friday, Monday is delta 3")
}
