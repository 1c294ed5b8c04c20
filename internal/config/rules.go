package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/clinicops/scheduling-engine/internal/scoring"
	"github.com/clinicops/scheduling-engine/internal/strikes"
	"github.com/clinicops/scheduling-engine/internal/tier"
)

// Rules is the validated scheduling-rules document: the tier table, the
// strike penalty table, and the score weights. Operators override the
// defaults with a JSON file; a document that fails validation refuses to
// load rather than degrading silently.
type Rules struct {
	Tiers     *tier.Table
	Penalties *strikes.PenaltyTable
	Weights   scoring.Weights
}

type rulesDoc struct {
	Tiers      []tier.Tier           `json:"tiers"`
	Penalties  []strikes.PenaltyRule `json:"penalties"`
	MaxStrikes int                   `json:"max_strikes"`
	Weights    scoring.Weights       `json:"weights"`
}

func intPtr(n int) *int { return &n }

func defaultRulesDoc() rulesDoc {
	return rulesDoc{
		Tiers: []tier.Tier{
			{Name: "P1", MinScore: 80, MinAppointments: 100, SlotsMin: 20, Periods: []tier.Period{tier.PeriodMorning, tier.PeriodAfternoon, tier.PeriodEvening}},
			{Name: "P2", MinScore: 60, MinAppointments: 50, SlotsMin: 14, SlotsMax: intPtr(30), Periods: []tier.Period{tier.PeriodMorning, tier.PeriodAfternoon, tier.PeriodEvening}},
			{Name: "P3", MinScore: 40, MinAppointments: 25, SlotsMin: 10, SlotsMax: intPtr(20), Periods: []tier.Period{tier.PeriodMorning, tier.PeriodAfternoon}},
			{Name: "P4", MinScore: 20, MinAppointments: 10, SlotsMin: 6, SlotsMax: intPtr(12), Periods: []tier.Period{tier.PeriodAfternoon}},
			{Name: "P5", MinScore: 0, MinAppointments: 0, SlotsMin: 0, SlotsMax: intPtr(6), Periods: []tier.Period{tier.PeriodAfternoon}},
		},
		Penalties: []strikes.PenaltyRule{
			{StrikeThreshold: 2, SlotReduction: 5, DurationDays: 7},
			{StrikeThreshold: 3, SlotReduction: 10, DurationDays: 14},
			{StrikeThreshold: 4, SlotReduction: 20, DurationDays: 30},
			{StrikeThreshold: 5, SlotReduction: 0, DurationDays: 0},
		},
		MaxStrikes: 5,
		Weights:    scoring.Weights{Conversion: 0.6, AvgTicket: 0.4},
	}
}

// LoadRules reads and validates the rules document at path. An empty path
// yields the built-in defaults.
func LoadRules(path string) (*Rules, error) {
	doc := defaultRulesDoc()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read rules %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("config: parse rules %s: %w", path, err)
		}
	}
	return buildRules(doc)
}

func buildRules(doc rulesDoc) (*Rules, error) {
	tiers, err := tier.NewTable(doc.Tiers)
	if err != nil {
		return nil, err
	}
	penalties, err := strikes.NewPenaltyTable(doc.Penalties, doc.MaxStrikes)
	if err != nil {
		return nil, err
	}
	if err := doc.Weights.Validate(); err != nil {
		return nil, err
	}
	return &Rules{Tiers: tiers, Penalties: penalties, Weights: doc.Weights}, nil
}
