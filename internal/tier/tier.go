// Package tier implements the capacity policy: performance tiers and the
// slot-capacity rules derived from them.
package tier

import (
	"errors"
	"fmt"
)

// Period is a coarse day segment a tier may grant access to.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// ErrInvalidConfig marks a tier table that fails schema validation, as
// opposed to a business-rule rejection at capacity-check time.
var ErrInvalidConfig = errors.New("tier: invalid tier configuration")

// ErrCapacityExceeded is returned when a proposed open-slot count is above
// the provider's effective maximum.
var ErrCapacityExceeded = errors.New("tier: capacity exceeded")

// Tier is one rank bucket of the capacity policy.
type Tier struct {
	Name            string   `json:"name"`
	MinScore        float64  `json:"min_score"`
	MinAppointments int      `json:"min_appointments"`
	SlotsMin        int      `json:"slots_min"`
	SlotsMax        *int     `json:"slots_max"` // nil means unlimited
	Periods         []Period `json:"periods"`
}

// AllowsPeriod reports whether the tier grants the given day period.
func (t Tier) AllowsPeriod(p Period) bool {
	for _, allowed := range t.Periods {
		if allowed == p {
			return true
		}
	}
	return false
}

// Metrics is the provider state a tier resolution is based on.
type Metrics struct {
	Score                 float64
	CompletedAppointments int
}

// Table is an ordered tier list, highest rank first. The last tier must be
// the zero-threshold fallback so Resolve always succeeds.
type Table struct {
	tiers []Tier
}

// NewTable validates and builds a tier table.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty tier list", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidConfig, i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidConfig, t.Name)
		}
		seen[t.Name] = true
		if t.MinScore < 0 || t.MinAppointments < 0 || t.SlotsMin < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative thresholds", ErrInvalidConfig, t.Name)
		}
		if t.SlotsMax != nil && *t.SlotsMax < t.SlotsMin {
			return nil, fmt.Errorf("%w: tier %q slots_max below slots_min", ErrInvalidConfig, t.Name)
		}
		if len(t.Periods) == 0 {
			return nil, fmt.Errorf("%w: tier %q grants no periods", ErrInvalidConfig, t.Name)
		}
		for _, p := range t.Periods {
			switch p {
			case PeriodMorning, PeriodAfternoon, PeriodEvening:
			default:
				return nil, fmt.Errorf("%w: tier %q has unknown period %q", ErrInvalidConfig, t.Name, p)
			}
		}
		if i > 0 {
			prev := tiers[i-1]
			if t.MinScore >= prev.MinScore || t.MinAppointments >= prev.MinAppointments {
				return nil, fmt.Errorf("%w: thresholds must strictly decrease from %q to %q", ErrInvalidConfig, prev.Name, t.Name)
			}
		}
	}
	last := tiers[len(tiers)-1]
	if last.MinScore != 0 || last.MinAppointments != 0 {
		return nil, fmt.Errorf("%w: lowest tier %q must have zero thresholds", ErrInvalidConfig, last.Name)
	}
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return &Table{tiers: cp}, nil
}

// Resolve returns the highest tier whose score and completed-appointment
// thresholds are both satisfied. The zero-threshold fallback guarantees a
// match.
func (tb *Table) Resolve(m Metrics) Tier {
	for _, t := range tb.tiers {
		if m.Score >= t.MinScore && m.CompletedAppointments >= t.MinAppointments {
			return t
		}
	}
	return tb.tiers[len(tb.tiers)-1]
}

// Lookup finds a tier by name.
func (tb *Table) Lookup(name string) (Tier, bool) {
	for _, t := range tb.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Lowest returns the fallback tier.
func (tb *Table) Lowest() Tier {
	return tb.tiers[len(tb.tiers)-1]
}

// Tiers returns a copy of the ordered tier list.
func (tb *Table) Tiers() []Tier {
	cp := make([]Tier, len(tb.tiers))
	copy(cp, tb.tiers)
	return cp
}

// EffectiveMax computes the enforceable open-slot ceiling for a tier after
// an active penalty reduction. The second return is false when the ceiling
// is unlimited (unlimited minus a finite reduction stays unlimited).
func EffectiveMax(t Tier, penaltyReduction int) (int, bool) {
	if t.SlotsMax == nil {
		return 0, false
	}
	max := *t.SlotsMax - penaltyReduction
	if max < 0 {
		max = 0
	}
	return max, true
}

// CheckCapacity rejects a proposed open-slot count above the effective
// maximum.
func CheckCapacity(t Tier, penaltyReduction, proposedOpenCount int) error {
	max, limited := EffectiveMax(t, penaltyReduction)
	if !limited {
		return nil
	}
	if proposedOpenCount > max {
		return fmt.Errorf("%w: %d proposed, %d allowed for %s", ErrCapacityExceeded, proposedOpenCount, max, t.Name)
	}
	return nil
}
