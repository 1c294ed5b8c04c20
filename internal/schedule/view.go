package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/tier"
)

// SlotView is one grid entry decorated for the UI layer.
type SlotView struct {
	Slot
	Period     tier.Period `json:"period"`
	Blackout   bool        `json:"blackout"`
	HasBooking bool        `json:"has_booking"`
}

// GridView is the provider's full grid with blackout flags and the booking
// overlay, read-only.
type GridView struct {
	ProviderID  uuid.UUID       `json:"provider_id"`
	Status      provider.Status `json:"status"`
	Tier        string          `json:"tier"`
	StrikeCount int             `json:"strike_count"`
	Slots       []SlotView      `json:"slots"`
}

// Grid assembles the read-only grid view. No provider lock is taken and no
// standing row is created; an unknown provider reads as a fresh one on the
// fallback tier.
func (s *Service) Grid(ctx context.Context, providerID uuid.UUID) (GridView, error) {
	standing, err := s.standings.Get(ctx, nil, providerID)
	if errors.Is(err, provider.ErrNotFound) {
		standing = &provider.Standing{ProviderID: providerID, Status: provider.StatusActive, Tier: s.tiers.Lowest().Name}
	} else if err != nil {
		return GridView{}, err
	}

	open, err := s.grid.ListOpen(ctx, nil, providerID)
	if err != nil {
		return GridView{}, err
	}

	var booked map[Slot]bool
	if len(open) > 0 {
		booked, err = s.bookings.BookedSlots(ctx, providerID, open)
		if err != nil {
			return GridView{}, err
		}
	}

	loc := standing.Location()
	now := s.now()
	views := make([]SlotView, len(open))
	for i, slot := range open {
		views[i] = SlotView{
			Slot:       slot,
			Period:     slot.Period(),
			Blackout:   s.blackout.Contains(slot, now, loc),
			HasBooking: booked[slot],
		}
	}

	return GridView{
		ProviderID:  providerID,
		Status:      standing.Status,
		Tier:        standing.Tier,
		StrikeCount: standing.StrikeCount,
		Slots:       views,
	}, nil
}
