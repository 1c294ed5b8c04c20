package strikes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
)

// Store persists strike records.
type Store struct {
	db provider.DB
}

// NewStore creates a strike store.
func NewStore(db provider.DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(q provider.DB) provider.DB {
	if q != nil {
		return q
	}
	return s.db
}

// Insert writes a new strike record.
func (s *Store) Insert(ctx context.Context, q provider.DB, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	slots, err := json.Marshal(rec.CancelledSlots)
	if err != nil {
		return fmt.Errorf("strikes: marshal cancelled slots: %w", err)
	}
	_, err = s.querier(q).Exec(ctx, `
		INSERT INTO strikes (id, provider_id, strike_number, reason_category, reason_text, cancelled_slots, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ProviderID, rec.StrikeNumber, string(rec.Reason), rec.ReasonText, slots, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("strikes: insert record: %w", err)
	}
	return nil
}

// ListByProvider returns all strikes for a provider, newest first.
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, strike_number, reason_category, reason_text, cancelled_slots, created_at
		FROM strikes
		WHERE provider_id = $1
		ORDER BY created_at DESC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("strikes: list by provider: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var reasonText *string
		var slots []byte
		if err := rows.Scan(&rec.ID, &rec.ProviderID, &rec.StrikeNumber, &rec.Reason, &reasonText, &slots, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("strikes: scan record: %w", err)
		}
		if reasonText != nil {
			rec.ReasonText = *reasonText
		}
		if err := json.Unmarshal(slots, &rec.CancelledSlots); err != nil {
			return nil, fmt.Errorf("strikes: decode cancelled slots: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeOlderThan removes strike records past the retention window. Strike
// counts on provider_standing are unaffected.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM strikes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("strikes: purge: %w", err)
	}
	return ct.RowsAffected(), nil
}
