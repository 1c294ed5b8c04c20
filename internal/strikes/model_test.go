package strikes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePenaltyTable(t *testing.T) *PenaltyTable {
	t.Helper()
	pt, err := NewPenaltyTable([]PenaltyRule{
		{StrikeThreshold: 2, SlotReduction: 5, DurationDays: 7},
		{StrikeThreshold: 3, SlotReduction: 10, DurationDays: 14},
		{StrikeThreshold: 4, SlotReduction: 20, DurationDays: 30},
		{StrikeThreshold: 5, SlotReduction: 0, DurationDays: 0},
	}, 5)
	require.NoError(t, err)
	return pt
}

func TestRuleFor(t *testing.T) {
	pt := samplePenaltyTable(t)

	_, ok := pt.RuleFor(1)
	assert.False(t, ok, "first strike carries no penalty")

	rule, ok := pt.RuleFor(2)
	require.True(t, ok)
	assert.Equal(t, 5, rule.SlotReduction)

	rule, ok = pt.RuleFor(4)
	require.True(t, ok)
	assert.Equal(t, 20, rule.SlotReduction)
	assert.Equal(t, 30, rule.DurationDays)

	rule, ok = pt.RuleFor(5)
	require.True(t, ok)
	assert.True(t, rule.IsFullSuspension())

	// Counts past the last threshold keep the last rule.
	rule, ok = pt.RuleFor(9)
	require.True(t, ok)
	assert.True(t, rule.IsFullSuspension())
}

func TestNewPenaltyTableValidation(t *testing.T) {
	_, err := NewPenaltyTable([]PenaltyRule{{StrikeThreshold: 2, SlotReduction: 5, DurationDays: 7}}, 0)
	assert.ErrorIs(t, err, ErrInvalidPenaltyConfig)

	_, err = NewPenaltyTable([]PenaltyRule{
		{StrikeThreshold: 3, SlotReduction: 5, DurationDays: 7},
		{StrikeThreshold: 2, SlotReduction: 10, DurationDays: 14},
	}, 5)
	assert.ErrorIs(t, err, ErrInvalidPenaltyConfig)

	_, err = NewPenaltyTable([]PenaltyRule{{StrikeThreshold: 0, SlotReduction: 5, DurationDays: 7}}, 5)
	assert.ErrorIs(t, err, ErrInvalidPenaltyConfig)
}

func TestActivePenaltyExpiry(t *testing.T) {
	pt := samplePenaltyTable(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{StrikeNumber: 2, CreatedAt: base},
	}

	penalty, active := pt.ActivePenalty(records, base.Add(6*24*time.Hour))
	require.True(t, active)
	assert.Equal(t, 5, penalty.SlotReduction)

	_, active = pt.ActivePenalty(records, base.Add(8*24*time.Hour))
	assert.False(t, active, "penalty expires after its duration")
}

func TestActivePenaltyMostSevereWins(t *testing.T) {
	pt := samplePenaltyTable(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Strikes 2 and 3 both still inside their durations.
	records := []Record{
		{StrikeNumber: 2, CreatedAt: base},
		{StrikeNumber: 3, CreatedAt: base.Add(2 * 24 * time.Hour)},
	}

	penalty, active := pt.ActivePenalty(records, base.Add(5*24*time.Hour))
	require.True(t, active)
	assert.Equal(t, 10, penalty.SlotReduction, "reductions must not stack")

	// Equal reductions: the one with more remaining duration wins.
	records = []Record{
		{StrikeNumber: 3, CreatedAt: base},
		{StrikeNumber: 3, CreatedAt: base.Add(3 * 24 * time.Hour)},
	}
	penalty, active = pt.ActivePenalty(records, base.Add(4*24*time.Hour))
	require.True(t, active)
	assert.Equal(t, base.Add(3*24*time.Hour).Add(14*24*time.Hour), penalty.ExpiresAt)
}

func TestActivePenaltyIgnoresSuspensionRule(t *testing.T) {
	pt := samplePenaltyTable(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{{StrikeNumber: 5, CreatedAt: base}}
	_, active := pt.ActivePenalty(records, base.Add(time.Hour))
	assert.False(t, active, "full suspension is a status, not a reduction")
}

func TestReasonCategoryValid(t *testing.T) {
	for _, c := range []ReasonCategory{ReasonIllness, ReasonFamilyEmergency, ReasonMedicalAppointment, ReasonTechnicalProblem, ReasonOther} {
		assert.True(t, c.Valid())
	}
	assert.False(t, ReasonCategory("vacation").Valid())
	assert.False(t, ReasonCategory("").Valid())
}
