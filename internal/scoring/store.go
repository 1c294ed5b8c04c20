package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/scheduling-engine/internal/provider"
)

// ErrNoSnapshot is returned when a provider has never been scored.
var ErrNoSnapshot = errors.New("scoring: no snapshot")

// Snapshot is one persisted score computation.
type Snapshot struct {
	ID                   uuid.UUID `json:"id"`
	ProviderID           uuid.UUID `json:"provider_id"`
	ConversionPercentile float64   `json:"conversion_percentile"`
	TicketPercentile     float64   `json:"ticket_percentile"`
	Score                float64   `json:"score"`
	ComputedAt           time.Time `json:"computed_at"`
}

// Store persists score snapshots.
type Store struct {
	db provider.DB
}

// NewStore creates a snapshot store.
func NewStore(db provider.DB) *Store {
	return &Store{db: db}
}

// Insert writes a snapshot row.
func (s *Store) Insert(ctx context.Context, snap *Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.ComputedAt.IsZero() {
		snap.ComputedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO score_snapshots (id, provider_id, conversion_percentile, ticket_percentile, score, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.ProviderID, snap.ConversionPercentile, snap.TicketPercentile, snap.Score, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("scoring: insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the provider's most recent snapshot.
func (s *Store) Latest(ctx context.Context, providerID uuid.UUID) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, provider_id, conversion_percentile, ticket_percentile, score, computed_at
		FROM score_snapshots
		WHERE provider_id = $1
		ORDER BY computed_at DESC
		LIMIT 1`, providerID)
	var snap Snapshot
	if err := row.Scan(&snap.ID, &snap.ProviderID, &snap.ConversionPercentile, &snap.TicketPercentile, &snap.Score, &snap.ComputedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("scoring: latest snapshot: %w", err)
	}
	return &snap, nil
}
