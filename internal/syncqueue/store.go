package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/scheduling-engine/internal/provider"
)

// ErrNotFound is returned when a queue item does not exist.
var ErrNotFound = errors.New("syncqueue: item not found")

// Store persists queue items.
type Store struct {
	db provider.DB
}

// NewStore creates a queue store.
func NewStore(db provider.DB) *Store {
	return &Store{db: db}
}

func (s *Store) querier(q provider.DB) provider.DB {
	if q != nil {
		return q
	}
	return s.db
}

// Enqueue inserts a pending item. Callers inside a mutation pass their
// transaction so the slot change and its reconciliation commit atomically.
func (s *Store) Enqueue(ctx context.Context, q provider.DB, providerID uuid.UUID, payloadType string, payload any) (*Item, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: marshal payload: %w", err)
	}
	item := &Item{
		ID:          uuid.New(),
		ProviderID:  providerID,
		PayloadType: payloadType,
		Payload:     data,
		MaxAttempts: DefaultMaxAttempts,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.querier(q).Exec(ctx, `
		INSERT INTO sync_queue (id, provider_id, payload_type, payload, attempts, max_attempts, status, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, 'pending', $6)`,
		item.ID, item.ProviderID, item.PayloadType, data, item.MaxAttempts, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: enqueue: %w", err)
	}
	return item, nil
}

// ClaimPending atomically flips up to limit pending items to processing and
// returns them in creation order. Processing rows claimed before
// requeueOlderThan belong to a sweep that died mid-batch; they are reclaimed
// along with the pending ones so a crash never strands items. SKIP LOCKED
// keeps a concurrent sweep from claiming the same rows.
func (s *Store) ClaimPending(ctx context.Context, limit int, requeueOlderThan time.Time) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE sync_queue
		SET status = 'processing', claimed_at = now()
		WHERE id IN (
			SELECT id FROM sync_queue
			WHERE status = 'pending'
			   OR (status = 'processing' AND claimed_at < $2)
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, provider_id, payload_type, payload, attempts, max_attempts, status, last_error, created_at, processed_at`,
		limit, requeueOlderThan)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: claim pending: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkDone records a successful reconciliation.
func (s *Store) MarkDone(ctx context.Context, id uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'done', processed_at = now(), last_error = NULL
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("syncqueue: mark done: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRetry returns a failed item to pending with attempts incremented. It
// will be picked up by a later sweep; there is no in-process backoff.
func (s *Store) MarkRetry(ctx context.Context, id uuid.UUID, lastError string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = 'processing'`, id, lastError)
	if err != nil {
		return fmt.Errorf("syncqueue: mark retry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed parks an exhausted item permanently.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'failed', attempts = attempts + 1, processed_at = now(), last_error = $2
		WHERE id = $1 AND status = 'processing'`, id, lastError)
	if err != nil {
		return fmt.Errorf("syncqueue: mark failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates item counts by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("syncqueue: stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("syncqueue: scan stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusDone:
			stats.Done = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// ListFailed returns permanently failed items for operator review.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, payload_type, payload, attempts, max_attempts, status, last_error, created_at, processed_at
		FROM sync_queue
		WHERE status = 'failed'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: list failed: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// PurgeDoneOlderThan removes done items past the retention window.
func (s *Store) PurgeDoneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM sync_queue WHERE status = 'done' AND processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("syncqueue: purge done: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var item Item
		var lastError *string
		var payload []byte
		if err := rows.Scan(&item.ID, &item.ProviderID, &item.PayloadType, &payload, &item.Attempts,
			&item.MaxAttempts, &item.Status, &lastError, &item.CreatedAt, &item.ProcessedAt); err != nil {
			return nil, fmt.Errorf("syncqueue: scan item: %w", err)
		}
		item.Payload = append(json.RawMessage(nil), payload...)
		if lastError != nil {
			item.LastError = *lastError
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
