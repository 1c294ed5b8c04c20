// Package syncqueue is the durable outbox that reconciles every
// state-changing operation against the external system of record, with
// bounded retries and terminal failure handling.
package syncqueue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the queue item lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Payload types enqueued by the scheduling engine.
const (
	PayloadSlotsOpened         = "slots.opened"
	PayloadSlotsClosed         = "slots.closed"
	PayloadEmergencyCancelled  = "slots.emergency_cancelled"
	PayloadStrikeRecorded      = "strike.recorded"
	PayloadProviderSuspended   = "provider.suspended"
	PayloadProviderReactivated = "provider.reactivated"
)

// DefaultMaxAttempts bounds retries before an item is parked as failed.
const DefaultMaxAttempts = 5

// ErrItemExhausted marks an item whose attempts reached the maximum; it
// never returns to pending and needs operator attention.
var ErrItemExhausted = errors.New("syncqueue: item exhausted")

// Item is one reconciliation unit. The item id doubles as the idempotency
// key the external call carries, making at-least-once delivery safe.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	ProviderID  uuid.UUID       `json:"provider_id"`
	PayloadType string          `json:"payload_type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      Status          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Stats is the read-only aggregate for operational dashboards.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}

// SweepResult summarizes one ProcessPending run.
type SweepResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}
