package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
)

// GridStore persists the open-slot set per provider.
type GridStore struct {
	db provider.DB
}

// NewGridStore creates a grid store.
func NewGridStore(db provider.DB) *GridStore {
	return &GridStore{db: db}
}

func (s *GridStore) querier(q provider.DB) provider.DB {
	if q != nil {
		return q
	}
	return s.db
}

// ListOpen returns the provider's open slots ordered by day and time.
func (s *GridStore) ListOpen(ctx context.Context, q provider.DB, providerID uuid.UUID) ([]Slot, error) {
	rows, err := s.querier(q).Query(ctx, `
		SELECT day_of_week, slot_time
		FROM open_slots
		WHERE provider_id = $1
		ORDER BY day_of_week, slot_time`, providerID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list open slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var day int
		var slotTime string
		if err := rows.Scan(&day, &slotTime); err != nil {
			return nil, fmt.Errorf("schedule: scan slot: %w", err)
		}
		slots = append(slots, Slot{DayOfWeek: time.Weekday(day), Time: slotTime})
	}
	return slots, rows.Err()
}

// Insert opens slots, skipping ones already open, and returns how many rows
// were actually added.
func (s *GridStore) Insert(ctx context.Context, q provider.DB, providerID uuid.UUID, slots []Slot) (int, error) {
	inserted := 0
	for _, slot := range slots {
		ct, err := s.querier(q).Exec(ctx, `
			INSERT INTO open_slots (provider_id, day_of_week, slot_time)
			VALUES ($1, $2, $3)
			ON CONFLICT (provider_id, day_of_week, slot_time) DO NOTHING`,
			providerID, int(slot.DayOfWeek), slot.Time)
		if err != nil {
			return inserted, fmt.Errorf("schedule: insert slot %s: %w", slot, err)
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// Delete closes slots and returns how many rows were removed.
func (s *GridStore) Delete(ctx context.Context, q provider.DB, providerID uuid.UUID, slots []Slot) (int, error) {
	deleted := 0
	for _, slot := range slots {
		ct, err := s.querier(q).Exec(ctx, `
			DELETE FROM open_slots
			WHERE provider_id = $1 AND day_of_week = $2 AND slot_time = $3`,
			providerID, int(slot.DayOfWeek), slot.Time)
		if err != nil {
			return deleted, fmt.Errorf("schedule: delete slot %s: %w", slot, err)
		}
		deleted += int(ct.RowsAffected())
	}
	return deleted, nil
}

// CountOpen returns the size of the provider's open-slot set.
func (s *GridStore) CountOpen(ctx context.Context, q provider.DB, providerID uuid.UUID) (int, error) {
	row := s.querier(q).QueryRow(ctx, `
		SELECT count(*) FROM open_slots WHERE provider_id = $1`, providerID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("schedule: count open slots: %w", err)
	}
	return count, nil
}
