package sor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/schedule"
	"github.com/clinicops/scheduling-engine/internal/scoring"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
)

// Adapter exposes the client through the interfaces the grid service and the
// sweep processor consume.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// BookedSlots implements schedule.BookingSource.
func (a *Adapter) BookedSlots(ctx context.Context, providerID uuid.UUID, slots []schedule.Slot) (map[schedule.Slot]bool, error) {
	if len(slots) == 0 {
		return map[schedule.Slot]bool{}, nil
	}
	req := make([]bookedSlot, len(slots))
	for i, s := range slots {
		req[i] = bookedSlot{DayOfWeek: int(s.DayOfWeek), Time: s.Time}
	}
	booked, err := a.client.BookedSlots(ctx, providerID.String(), req)
	if err != nil {
		return nil, err
	}
	out := make(map[schedule.Slot]bool, len(booked))
	for _, b := range booked {
		out[schedule.Slot{DayOfWeek: time.Weekday(b.DayOfWeek), Time: b.Time}] = true
	}
	return out, nil
}

// CompletedAppointments implements schedule.HistorySource.
func (a *Adapter) CompletedAppointments(ctx context.Context, providerID uuid.UUID) (int, error) {
	return a.client.CompletedAppointments(ctx, providerID.String())
}

// PerformanceBatch returns the full-population metrics batch for a score
// recompute. Rows with an unparseable provider id are dropped; the engine's
// own range validation handles the rest.
func (a *Adapter) PerformanceBatch(ctx context.Context) ([]scoring.ProviderMetrics, error) {
	rows, err := a.client.ProviderPerformance(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]scoring.ProviderMetrics, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ProviderID)
		if err != nil {
			continue
		}
		batch = append(batch, scoring.ProviderMetrics{
			ProviderID:            id,
			Conversion:            row.ConversionRate,
			AvgTicket:             row.AvgTicketNormalized,
			CompletedAppointments: row.CompletedAppointments,
		})
	}
	return batch, nil
}

// Reconcile implements syncqueue.Reconciler. The queue item's id doubles as
// the idempotency key, so a redelivered item lands as a duplicate on the
// remote side instead of a second event.
func (a *Adapter) Reconcile(ctx context.Context, item syncqueue.Item) error {
	return a.client.PushEvent(ctx, item.ID.String(), item.PayloadType, item.Payload)
}
