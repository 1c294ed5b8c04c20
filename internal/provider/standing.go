// Package provider tracks per-provider standing: lifecycle status, strike
// count, and the tier assigned by the last score recompute.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Status is the provider lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// ErrNotFound is returned when a provider has no standing row.
var ErrNotFound = errors.New("provider: not found")

// Standing is the mutable per-provider record the engine keeps.
type Standing struct {
	ProviderID  uuid.UUID `json:"provider_id"`
	Status      Status    `json:"status"`
	StrikeCount int       `json:"strike_count"`
	Tier        string    `json:"tier"`
	Timezone    string    `json:"timezone"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location resolves the provider's IANA timezone, falling back to UTC.
func (s Standing) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DB abstracts the pgx query interface so stores work against a pool, a
// transaction, or a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists provider standing rows.
type Store struct {
	db DB
}

// NewStore creates a standing store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(q DB) DB {
	if q != nil {
		return q
	}
	return s.db
}

// Ensure creates the standing row if it does not exist yet and returns the
// current state. New providers start active at the given fallback tier.
func (s *Store) Ensure(ctx context.Context, q DB, providerID uuid.UUID, fallbackTier string) (*Standing, error) {
	db := s.querier(q)
	_, err := db.Exec(ctx, `
		INSERT INTO provider_standing (provider_id, status, strike_count, tier)
		VALUES ($1, 'active', 0, $2)
		ON CONFLICT (provider_id) DO NOTHING`,
		providerID, fallbackTier,
	)
	if err != nil {
		return nil, fmt.Errorf("provider: ensure standing: %w", err)
	}
	return s.Get(ctx, q, providerID)
}

// Get fetches the standing row for a provider.
func (s *Store) Get(ctx context.Context, q DB, providerID uuid.UUID) (*Standing, error) {
	row := s.querier(q).QueryRow(ctx, `
		SELECT provider_id, status, strike_count, tier, timezone, updated_at
		FROM provider_standing
		WHERE provider_id = $1`, providerID)
	var st Standing
	if err := row.Scan(&st.ProviderID, &st.Status, &st.StrikeCount, &st.Tier, &st.Timezone, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("provider: get standing: %w", err)
	}
	return &st, nil
}

// IncrementStrikes bumps the strike count and returns the new value.
func (s *Store) IncrementStrikes(ctx context.Context, q DB, providerID uuid.UUID) (int, error) {
	row := s.querier(q).QueryRow(ctx, `
		UPDATE provider_standing
		SET strike_count = strike_count + 1, updated_at = now()
		WHERE provider_id = $1
		RETURNING strike_count`, providerID)
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("provider: increment strikes: %w", err)
	}
	return count, nil
}

// SetStatus transitions the provider lifecycle state.
func (s *Store) SetStatus(ctx context.Context, q DB, providerID uuid.UUID, status Status) error {
	ct, err := s.querier(q).Exec(ctx, `
		UPDATE provider_standing
		SET status = $2, updated_at = now()
		WHERE provider_id = $1`, providerID, string(status))
	if err != nil {
		return fmt.Errorf("provider: set status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTier records the tier assigned by the latest score recompute.
func (s *Store) SetTier(ctx context.Context, q DB, providerID uuid.UUID, tierName string) error {
	ct, err := s.querier(q).Exec(ctx, `
		UPDATE provider_standing
		SET tier = $2, updated_at = now()
		WHERE provider_id = $1`, providerID, tierName)
	if err != nil {
		return fmt.Errorf("provider: set tier: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStrikes is the administrative reset: clears the strike count and
// reactivates a suspended provider.
func (s *Store) ResetStrikes(ctx context.Context, q DB, providerID uuid.UUID) error {
	ct, err := s.querier(q).Exec(ctx, `
		UPDATE provider_standing
		SET strike_count = 0, status = 'active', updated_at = now()
		WHERE provider_id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("provider: reset strikes: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
