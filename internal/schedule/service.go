package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicops/scheduling-engine/internal/audit"
	"github.com/clinicops/scheduling-engine/internal/observability/metrics"
	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/scoring"
	"github.com/clinicops/scheduling-engine/internal/strikes"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/internal/tier"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type gridStore interface {
	ListOpen(ctx context.Context, q provider.DB, providerID uuid.UUID) ([]Slot, error)
	Insert(ctx context.Context, q provider.DB, providerID uuid.UUID, slots []Slot) (int, error)
	Delete(ctx context.Context, q provider.DB, providerID uuid.UUID, slots []Slot) (int, error)
}

type standingStore interface {
	Ensure(ctx context.Context, q provider.DB, providerID uuid.UUID, fallbackTier string) (*provider.Standing, error)
	Get(ctx context.Context, q provider.DB, providerID uuid.UUID) (*provider.Standing, error)
}

type strikeLedger interface {
	RecordStrike(ctx context.Context, q provider.DB, providerID uuid.UUID, reason strikes.ReasonCategory, reasonText string, slots []strikes.SlotRef) (*strikes.StrikeOutcome, error)
	ActivePenalty(ctx context.Context, providerID uuid.UUID) (strikes.ActivePenalty, bool, error)
}

type queueStore interface {
	Enqueue(ctx context.Context, q provider.DB, providerID uuid.UUID, payloadType string, payload any) (*syncqueue.Item, error)
}

// BookingSource answers which of the given slots currently carry a booked
// appointment, per the external system of record.
type BookingSource interface {
	BookedSlots(ctx context.Context, providerID uuid.UUID, slots []Slot) (map[Slot]bool, error)
}

// HistorySource supplies the completed-appointment count tier resolution
// needs.
type HistorySource interface {
	CompletedAppointments(ctx context.Context, providerID uuid.UUID) (int, error)
}

type scoreSource interface {
	Latest(ctx context.Context, providerID uuid.UUID) (*scoring.Snapshot, error)
}

type auditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service is the slot-grid mutation engine. Every entry point serializes on
// the provider's lock, validates against the blackout window and the
// capacity policy, and commits the mutation atomically with its sync-queue
// item.
type Service struct {
	pool      txBeginner
	grid      gridStore
	standings standingStore
	ledger    strikeLedger
	queue     queueStore
	bookings  BookingSource
	history   HistorySource
	scores    scoreSource
	auditor   auditLog
	tiers     *tier.Table
	blackout  BlackoutWindow
	locks     *provider.LockArena
	logger    *logging.Logger
	metrics   *metrics.EngineMetrics
	now       func() time.Time
}

// ServiceConfig wires the service dependencies.
type ServiceConfig struct {
	Pool      txBeginner
	Grid      gridStore
	Standings standingStore
	Ledger    strikeLedger
	Queue     queueStore
	Bookings  BookingSource
	History   HistorySource
	Scores    scoreSource
	Auditor   auditLog
	Tiers     *tier.Table
	Blackout  BlackoutWindow
	Locks     *provider.LockArena
	Logger    *logging.Logger
	Metrics   *metrics.EngineMetrics
}

// NewService creates the grid service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	locks := cfg.Locks
	if locks == nil {
		locks = provider.NewLockArena()
	}
	blackout := cfg.Blackout
	if blackout.Days == 0 {
		blackout = NewBlackoutWindow(DefaultBlackoutDays)
	}
	return &Service{
		pool:      cfg.Pool,
		grid:      cfg.Grid,
		standings: cfg.Standings,
		ledger:    cfg.Ledger,
		queue:     cfg.Queue,
		bookings:  cfg.Bookings,
		history:   cfg.History,
		scores:    cfg.Scores,
		auditor:   cfg.Auditor,
		tiers:     cfg.Tiers,
		blackout:  blackout,
		locks:     locks,
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// OpenResult reports an open-slots call.
type OpenResult struct {
	Opened int `json:"opened"`
}

// CloseResult reports a close-slots call.
type CloseResult struct {
	Closed       int  `json:"closed"`
	BelowMinimum bool `json:"below_minimum"`
}

// CancelResult reports an emergency cancellation.
type CancelResult struct {
	Cancelled    int  `json:"cancelled"`
	StrikesAdded int  `json:"strikes_added"`
	Suspended    bool `json:"suspended"`
}

type slotsPayload struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Slots      []Slot    `json:"slots"`
	OccurredAt time.Time `json:"occurred_at"`
}

type cancelPayload struct {
	ProviderID  uuid.UUID              `json:"provider_id"`
	Slots       []Slot                 `json:"slots"`
	BookedSlots []Slot                 `json:"booked_slots"`
	Reason      strikes.ReasonCategory `json:"reason_category"`
	ReasonText  string                 `json:"reason_text,omitempty"`
	StrikeID    *uuid.UUID             `json:"strike_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// OpenSlots opens the given slots. Slots already open are silent no-ops;
// blackout, tier-period, capacity, and suspension rules all apply.
func (s *Service) OpenSlots(ctx context.Context, providerID uuid.UUID, slots []Slot) (OpenResult, error) {
	if err := ValidateAll(slots); err != nil {
		s.metrics.ObserveMutation("open", "invalid")
		return OpenResult{}, err
	}

	unlock := s.locks.Lock(providerID)
	defer unlock()

	standing, err := s.standings.Ensure(ctx, nil, providerID, s.tiers.Lowest().Name)
	if err != nil {
		return OpenResult{}, err
	}
	if standing.Status == provider.StatusSuspended {
		s.metrics.ObserveMutation("open", "suspended")
		return OpenResult{}, ErrProviderSuspended
	}

	loc := standing.Location()
	now := s.now()
	for _, slot := range slots {
		if s.blackout.Contains(slot, now, loc) {
			s.metrics.ObserveMutation("open", "blackout")
			return OpenResult{}, fmt.Errorf("%w: %s", ErrBlackoutViolation, slot)
		}
	}

	current, err := s.resolveTier(ctx, providerID)
	if err != nil {
		return OpenResult{}, err
	}
	for _, slot := range slots {
		if !current.AllowsPeriod(slot.Period()) {
			s.metrics.ObserveMutation("open", "tier_policy")
			return OpenResult{}, fmt.Errorf("%w: %s period %s not granted by %s", ErrTierPolicyViolation, slot, slot.Period(), current.Name)
		}
	}

	open, err := s.grid.ListOpen(ctx, nil, providerID)
	if err != nil {
		return OpenResult{}, err
	}
	openSet := make(map[Slot]bool, len(open))
	for _, slot := range open {
		openSet[slot] = true
	}
	toOpen := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		if !openSet[slot] {
			toOpen = append(toOpen, slot)
		}
	}
	if len(toOpen) == 0 {
		s.metrics.ObserveMutation("open", "noop")
		return OpenResult{Opened: 0}, nil
	}

	reduction := 0
	if penalty, active, err := s.ledger.ActivePenalty(ctx, providerID); err != nil {
		return OpenResult{}, err
	} else if active {
		reduction = penalty.SlotReduction
	}
	if err := tier.CheckCapacity(current, reduction, len(open)+len(toOpen)); err != nil {
		s.metrics.ObserveMutation("open", "capacity")
		return OpenResult{}, err
	}

	SortSlots(toOpen)
	var opened int
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		opened, txErr = s.grid.Insert(ctx, tx, providerID, toOpen)
		if txErr != nil {
			return txErr
		}
		_, txErr = s.queue.Enqueue(ctx, tx, providerID, syncqueue.PayloadSlotsOpened, slotsPayload{
			ProviderID: providerID,
			Slots:      toOpen,
			OccurredAt: now,
		})
		return txErr
	})
	if err != nil {
		return OpenResult{}, err
	}

	s.metrics.ObserveMutation("open", "ok")
	s.audit(ctx, providerID, "slots.open", map[string]any{"slots": toOpen, "opened": opened})
	s.logger.Info("slots opened", "provider_id", providerID, "opened", opened, "tier", current.Name)
	return OpenResult{Opened: opened}, nil
}

// CloseSlots closes the given slots. Booked slots are untouchable here;
// that path is exclusively EmergencyCancel. Closing below the tier minimum
// is allowed but flagged.
func (s *Service) CloseSlots(ctx context.Context, providerID uuid.UUID, slots []Slot) (CloseResult, error) {
	if err := ValidateAll(slots); err != nil {
		s.metrics.ObserveMutation("close", "invalid")
		return CloseResult{}, err
	}

	unlock := s.locks.Lock(providerID)
	defer unlock()

	standing, err := s.standings.Ensure(ctx, nil, providerID, s.tiers.Lowest().Name)
	if err != nil {
		return CloseResult{}, err
	}
	if standing.Status == provider.StatusSuspended {
		s.metrics.ObserveMutation("close", "suspended")
		return CloseResult{}, ErrProviderSuspended
	}

	loc := standing.Location()
	now := s.now()
	for _, slot := range slots {
		if s.blackout.Contains(slot, now, loc) {
			s.metrics.ObserveMutation("close", "blackout")
			return CloseResult{}, fmt.Errorf("%w: %s", ErrBlackoutViolation, slot)
		}
	}

	booked, err := s.bookings.BookedSlots(ctx, providerID, slots)
	if err != nil {
		return CloseResult{}, err
	}
	for _, slot := range slots {
		if booked[slot] {
			s.metrics.ObserveMutation("close", "has_booking")
			return CloseResult{}, fmt.Errorf("%w: %s", ErrHasBookingViolation, slot)
		}
	}

	toClose := append([]Slot(nil), slots...)
	SortSlots(toClose)
	var closed int
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		closed, txErr = s.grid.Delete(ctx, tx, providerID, toClose)
		if txErr != nil {
			return txErr
		}
		_, txErr = s.queue.Enqueue(ctx, tx, providerID, syncqueue.PayloadSlotsClosed, slotsPayload{
			ProviderID: providerID,
			Slots:      toClose,
			OccurredAt: now,
		})
		return txErr
	})
	if err != nil {
		return CloseResult{}, err
	}

	result := CloseResult{Closed: closed}
	if current, err := s.resolveTier(ctx, providerID); err == nil {
		remaining, listErr := s.grid.ListOpen(ctx, nil, providerID)
		if listErr == nil && len(remaining) < current.SlotsMin {
			result.BelowMinimum = true
			s.logger.Warn("open slots below tier minimum", "provider_id", providerID,
				"open", len(remaining), "minimum", current.SlotsMin, "tier", current.Name)
		}
	}

	s.metrics.ObserveMutation("close", "ok")
	s.audit(ctx, providerID, "slots.close", map[string]any{"slots": toClose, "closed": closed, "below_minimum": result.BelowMinimum})
	s.logger.Info("slots closed", "provider_id", providerID, "closed", closed)
	return result, nil
}

// EmergencyCancel closes slots even inside the blackout window. Slots that
// carry a booking feed one strike record per call; bookingless slots in the
// same call close without consequence.
func (s *Service) EmergencyCancel(ctx context.Context, providerID uuid.UUID, slots []Slot, reason strikes.ReasonCategory, reasonText string) (CancelResult, error) {
	if len(slots) == 0 || !reason.Valid() {
		s.metrics.ObserveMutation("emergency_cancel", "invalid")
		return CancelResult{}, ErrInvalidReason
	}
	if err := ValidateAll(slots); err != nil {
		s.metrics.ObserveMutation("emergency_cancel", "invalid")
		return CancelResult{}, err
	}

	unlock := s.locks.Lock(providerID)
	defer unlock()

	standing, err := s.standings.Ensure(ctx, nil, providerID, s.tiers.Lowest().Name)
	if err != nil {
		return CancelResult{}, err
	}
	if standing.Status == provider.StatusSuspended {
		s.metrics.ObserveMutation("emergency_cancel", "suspended")
		return CancelResult{}, ErrProviderSuspended
	}

	booked, err := s.bookings.BookedSlots(ctx, providerID, slots)
	if err != nil {
		return CancelResult{}, err
	}
	var bookedSlots []Slot
	for _, slot := range slots {
		if booked[slot] {
			bookedSlots = append(bookedSlots, slot)
		}
	}
	SortSlots(bookedSlots)

	toCancel := append([]Slot(nil), slots...)
	SortSlots(toCancel)
	now := s.now()

	var result CancelResult
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		cancelled, txErr := s.grid.Delete(ctx, tx, providerID, toCancel)
		if txErr != nil {
			return txErr
		}
		result.Cancelled = cancelled

		payload := cancelPayload{
			ProviderID:  providerID,
			Slots:       toCancel,
			BookedSlots: bookedSlots,
			Reason:      reason,
			ReasonText:  reasonText,
			OccurredAt:  now,
		}
		if len(bookedSlots) > 0 {
			refs := make([]strikes.SlotRef, len(bookedSlots))
			for i, slot := range bookedSlots {
				refs[i] = slot.Ref()
			}
			outcome, txErr := s.ledger.RecordStrike(ctx, tx, providerID, reason, reasonText, refs)
			if txErr != nil {
				return txErr
			}
			result.StrikesAdded = 1
			result.Suspended = outcome.Suspended
			payload.StrikeID = &outcome.Record.ID

			if outcome.Suspended {
				if _, txErr = s.queue.Enqueue(ctx, tx, providerID, syncqueue.PayloadProviderSuspended, map[string]any{
					"provider_id":  providerID,
					"strike_count": outcome.Count,
					"occurred_at":  now,
				}); txErr != nil {
					return txErr
				}
			}
		}
		_, txErr = s.queue.Enqueue(ctx, tx, providerID, syncqueue.PayloadEmergencyCancelled, payload)
		return txErr
	})
	if err != nil {
		return CancelResult{}, err
	}

	if result.StrikesAdded > 0 {
		s.metrics.ObserveStrike()
	}
	s.metrics.ObserveMutation("emergency_cancel", "ok")
	s.audit(ctx, providerID, "slots.emergency_cancel", map[string]any{
		"slots": toCancel, "booked": bookedSlots, "reason": reason,
		"strikes_added": result.StrikesAdded, "suspended": result.Suspended,
	})
	s.logger.Info("emergency cancellation", "provider_id", providerID,
		"cancelled", result.Cancelled, "strikes_added", result.StrikesAdded, "suspended", result.Suspended)
	return result, nil
}

// resolveTier re-resolves the provider's tier from the latest snapshot and
// history. Missing data degrades to the zero metrics, which resolves to the
// fallback tier rather than blocking the mutation.
func (s *Service) resolveTier(ctx context.Context, providerID uuid.UUID) (tier.Tier, error) {
	var m tier.Metrics
	snap, err := s.scores.Latest(ctx, providerID)
	switch {
	case err == nil:
		m.Score = snap.Score
	case errors.Is(err, scoring.ErrNoSnapshot):
	default:
		return tier.Tier{}, err
	}
	completed, err := s.history.CompletedAppointments(ctx, providerID)
	if err != nil {
		s.logger.Warn("appointment history unavailable, using fallback tier", "provider_id", providerID, "error", err)
	} else {
		m.CompletedAppointments = completed
	}
	return s.tiers.Resolve(m), nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("schedule: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("schedule: commit tx: %w", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, providerID uuid.UUID, action string, after map[string]any) {
	if s.auditor == nil {
		return
	}
	actor := providerID.String()
	entry := audit.Entry{
		ActorID: &actor,
		Action:  action,
		Entity:  "provider:" + providerID.String(),
	}
	if err := entry.SetAfter(after); err != nil {
		s.logger.Error("audit payload encode failed", "error", err, "action", action)
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Error("audit write failed", "error", err, "action", action)
	}
}
