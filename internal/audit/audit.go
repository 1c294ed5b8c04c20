// Package audit keeps the immutable trail of grid mutations and queue-sweep
// outcomes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable audit record. ActorID is nil for system actions
// such as cron sweeps.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ActorID     *string         `json:"actor_id"`
	Action      string          `json:"action"`
	Entity      string          `json:"entity"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SetBefore encodes the pre-mutation state.
func (e *Entry) SetBefore(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audit: marshal before state: %w", err)
	}
	e.BeforeState = data
	return nil
}

// SetAfter encodes the post-mutation state.
func (e *Entry) SetAfter(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audit: marshal after state: %w", err)
	}
	e.AfterState = data
	return nil
}

// Service handles audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record appends an audit entry.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.AfterState == nil {
		entry.AfterState = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_log (id, actor_id, action, entity, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.Entity,
		[]byte(entry.BeforeState),
		[]byte(entry.AfterState),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record entry: %w", err)
	}
	return nil
}

// Filter specifies criteria for querying audit entries.
type Filter struct {
	Entity    string
	Action    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Query retrieves audit entries with filters, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, actor_id, action, entity, before_state, after_state, created_at
		FROM audit_log
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.Entity != "" {
		query += fmt.Sprintf(" AND entity = $%d", argIdx)
		args = append(args, filter.Entity)
		argIdx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, filter.Action)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorID sql.NullString
		var before, after []byte
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.Entity, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.String
		}
		if before != nil {
			e.BeforeState = json.RawMessage(before)
		}
		e.AfterState = json.RawMessage(after)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan removes entries past the retention window.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge failed: %w", err)
	}
	return res.RowsAffected()
}
