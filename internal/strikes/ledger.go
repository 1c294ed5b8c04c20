package strikes

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type strikeQueue interface {
	Enqueue(ctx context.Context, q provider.DB, providerID uuid.UUID, payloadType string, payload any) (*syncqueue.Item, error)
}

// Ledger applies the strike state machine: monotonically increasing counts,
// penalty activation, and suspension at the max-strikes threshold.
type Ledger struct {
	store     *Store
	standings *provider.Store
	penalties *PenaltyTable
	queue     strikeQueue
	logger    *logging.Logger
	now       func() time.Time
}

// NewLedger creates a ledger. Each recorded strike lands on the sync queue as
// a strike.recorded event in the same transaction.
func NewLedger(store *Store, standings *provider.Store, penalties *PenaltyTable, queue strikeQueue, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		store:     store,
		standings: standings,
		penalties: penalties,
		queue:     queue,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

// StrikeOutcome reports what recording a strike did.
type StrikeOutcome struct {
	Record    *Record
	Count     int
	Suspended bool
}

// RecordStrike appends one strike covering the given booked slots. Runs
// inside the caller's transaction so the strike commits atomically with the
// slot mutation that caused it.
func (l *Ledger) RecordStrike(ctx context.Context, q provider.DB, providerID uuid.UUID, reason ReasonCategory, reasonText string, slots []SlotRef) (*StrikeOutcome, error) {
	count, err := l.standings.IncrementStrikes(ctx, q, providerID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:             uuid.New(),
		ProviderID:     providerID,
		StrikeNumber:   count,
		Reason:         reason,
		ReasonText:     reasonText,
		CancelledSlots: slots,
		CreatedAt:      l.now(),
	}
	if err := l.store.Insert(ctx, q, rec); err != nil {
		return nil, err
	}
	if l.queue != nil {
		if _, err := l.queue.Enqueue(ctx, q, providerID, syncqueue.PayloadStrikeRecorded, rec); err != nil {
			return nil, err
		}
	}

	outcome := &StrikeOutcome{Record: rec, Count: count}
	if count >= l.penalties.MaxStrikes() {
		if err := l.standings.SetStatus(ctx, q, providerID, provider.StatusSuspended); err != nil {
			return nil, err
		}
		outcome.Suspended = true
		l.logger.Warn("provider suspended", "provider_id", providerID, "strike_count", count)
	}
	return outcome, nil
}

// ActivePenalty returns the slot reduction in effect right now, if any.
func (l *Ledger) ActivePenalty(ctx context.Context, providerID uuid.UUID) (ActivePenalty, bool, error) {
	records, err := l.store.ListByProvider(ctx, providerID)
	if err != nil {
		return ActivePenalty{}, false, err
	}
	penalty, active := l.penalties.ActivePenalty(records, l.now())
	return penalty, active, nil
}

// History returns the provider's strike records, newest first.
func (l *Ledger) History(ctx context.Context, providerID uuid.UUID) ([]Record, error) {
	return l.store.ListByProvider(ctx, providerID)
}

// Reset is the administrative escape hatch: clears strikes and lifts
// suspension.
func (l *Ledger) Reset(ctx context.Context, providerID uuid.UUID) error {
	if err := l.standings.ResetStrikes(ctx, nil, providerID); err != nil {
		return err
	}
	l.logger.Info("strikes reset", "provider_id", providerID)
	return nil
}

// Penalties exposes the configured table for read-only surfaces.
func (l *Ledger) Penalties() *PenaltyTable {
	return l.penalties
}
