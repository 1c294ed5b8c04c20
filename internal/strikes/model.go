// Package strikes maintains the accountability ledger: strikes issued for
// emergency cancellations that carried booked appointments, and the
// time-bounded penalties derived from them.
package strikes

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReasonCategory classifies why an emergency cancellation happened.
type ReasonCategory string

const (
	ReasonIllness            ReasonCategory = "illness"
	ReasonFamilyEmergency    ReasonCategory = "family_emergency"
	ReasonMedicalAppointment ReasonCategory = "medical_appointment"
	ReasonTechnicalProblem   ReasonCategory = "technical_problem"
	ReasonOther              ReasonCategory = "other"
)

// Valid reports whether the category is one of the fixed enumeration.
func (c ReasonCategory) Valid() bool {
	switch c {
	case ReasonIllness, ReasonFamilyEmergency, ReasonMedicalAppointment, ReasonTechnicalProblem, ReasonOther:
		return true
	}
	return false
}

// SlotRef identifies a cancelled slot inside a strike record.
type SlotRef struct {
	DayOfWeek int    `json:"day_of_week"`
	Time      string `json:"time"`
}

// Record is one strike. A single emergency-cancel call produces at most one
// record, covering every booked slot cancelled in that call.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	ProviderID     uuid.UUID      `json:"provider_id"`
	StrikeNumber   int            `json:"strike_number"`
	Reason         ReasonCategory `json:"reason_category"`
	ReasonText     string         `json:"reason_text,omitempty"`
	CancelledSlots []SlotRef      `json:"cancelled_slots"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ErrInvalidPenaltyConfig marks a penalty table that fails validation.
var ErrInvalidPenaltyConfig = errors.New("strikes: invalid penalty configuration")

// PenaltyRule maps a strike count to its consequence. A rule with zero
// reduction and zero duration denotes full suspension.
type PenaltyRule struct {
	StrikeThreshold int `json:"strike_threshold"`
	SlotReduction   int `json:"slot_reduction"`
	DurationDays    int `json:"duration_days"`
}

// IsFullSuspension reports whether the rule suspends rather than reduces.
func (r PenaltyRule) IsFullSuspension() bool {
	return r.SlotReduction == 0 && r.DurationDays == 0
}

// PenaltyTable is the ordered rule list plus the irreversible-suspension
// threshold.
type PenaltyTable struct {
	rules      []PenaltyRule
	maxStrikes int
}

// NewPenaltyTable validates and builds a penalty table. Rules must be in
// strictly ascending threshold order.
func NewPenaltyTable(rules []PenaltyRule, maxStrikes int) (*PenaltyTable, error) {
	if maxStrikes <= 0 {
		return nil, fmt.Errorf("%w: max_strikes must be positive", ErrInvalidPenaltyConfig)
	}
	for i, r := range rules {
		if r.StrikeThreshold <= 0 {
			return nil, fmt.Errorf("%w: rule %d has non-positive threshold", ErrInvalidPenaltyConfig, i)
		}
		if r.SlotReduction < 0 || r.DurationDays < 0 {
			return nil, fmt.Errorf("%w: rule %d has negative effect", ErrInvalidPenaltyConfig, i)
		}
		if i > 0 && r.StrikeThreshold <= rules[i-1].StrikeThreshold {
			return nil, fmt.Errorf("%w: thresholds must strictly ascend", ErrInvalidPenaltyConfig)
		}
	}
	cp := make([]PenaltyRule, len(rules))
	copy(cp, rules)
	return &PenaltyTable{rules: cp, maxStrikes: maxStrikes}, nil
}

// MaxStrikes is the count at which suspension becomes irreversible until a
// manual reset.
func (pt *PenaltyTable) MaxStrikes() int {
	return pt.maxStrikes
}

// RuleFor returns the rule with the highest threshold at or below the given
// strike count.
func (pt *PenaltyTable) RuleFor(strikeCount int) (PenaltyRule, bool) {
	var match PenaltyRule
	found := false
	for _, r := range pt.rules {
		if r.StrikeThreshold <= strikeCount {
			match = r
			found = true
		}
	}
	return match, found
}

// ActivePenalty is the currently enforceable slot reduction.
type ActivePenalty struct {
	SlotReduction int
	ExpiresAt     time.Time
}

// ActivePenalty derives the penalty in effect at the given instant from the
// strike history. Each strike activates the rule matching its ordinal for
// DurationDays after the strike. Concurrent penalties do not stack: the
// largest reduction wins, ties broken by the longer remaining duration.
func (pt *PenaltyTable) ActivePenalty(records []Record, now time.Time) (ActivePenalty, bool) {
	var best ActivePenalty
	found := false
	for _, rec := range records {
		rule, ok := pt.RuleFor(rec.StrikeNumber)
		if !ok || rule.IsFullSuspension() || rule.SlotReduction == 0 {
			continue
		}
		expires := rec.CreatedAt.Add(time.Duration(rule.DurationDays) * 24 * time.Hour)
		if !now.Before(expires) {
			continue
		}
		candidate := ActivePenalty{SlotReduction: rule.SlotReduction, ExpiresAt: expires}
		if !found ||
			candidate.SlotReduction > best.SlotReduction ||
			(candidate.SlotReduction == best.SlotReduction && candidate.ExpiresAt.After(best.ExpiresAt)) {
			best = candidate
			found = true
		}
	}
	return best, found
}
