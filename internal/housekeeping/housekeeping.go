// Package housekeeping prunes aged operational rows: delivered sync-queue
// items and expired audit entries. Strike records are never pruned here;
// the penalty ledger needs the full history.
package housekeeping

import (
	"context"
	"time"

	"github.com/clinicops/scheduling-engine/internal/audit"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type syncPurger interface {
	PurgeDoneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Record(ctx context.Context, entry audit.Entry) error
}

// Result summarizes one housekeeping run.
type Result struct {
	SyncItemsPurged    int64 `json:"sync_items_purged"`
	AuditEntriesPurged int64 `json:"audit_entries_purged"`
}

// Sweeper runs the retention sweep.
type Sweeper struct {
	sync           syncPurger
	audit          auditStore
	syncRetention  time.Duration
	auditRetention time.Duration
	logger         *logging.Logger
	now            func() time.Time
}

// NewSweeper builds a sweeper. Non-positive retentions fall back to 30 days
// for sync items and 90 for audit entries.
func NewSweeper(sync syncPurger, audit auditStore, syncRetention, auditRetention time.Duration, logger *logging.Logger) *Sweeper {
	if syncRetention <= 0 {
		syncRetention = 30 * 24 * time.Hour
	}
	if auditRetention <= 0 {
		auditRetention = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		sync:           sync,
		audit:          audit,
		syncRetention:  syncRetention,
		auditRetention: auditRetention,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Run executes one retention sweep. A failed purge aborts the run; the next
// scheduled run picks up where this one left off.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var result Result
	now := s.now()

	purged, err := s.sync.PurgeDoneOlderThan(ctx, now.Add(-s.syncRetention))
	if err != nil {
		return result, err
	}
	result.SyncItemsPurged = purged

	purged, err = s.audit.PurgeOlderThan(ctx, now.Add(-s.auditRetention))
	if err != nil {
		return result, err
	}
	result.AuditEntriesPurged = purged

	s.logger.Info("housekeeping sweep complete",
		"sync_items_purged", result.SyncItemsPurged,
		"audit_entries_purged", result.AuditEntriesPurged)
	s.record(ctx, result)
	return result, nil
}

// record appends the sweep outcome to the audit trail, best-effort.
func (s *Sweeper) record(ctx context.Context, result Result) {
	entry := audit.Entry{Action: "housekeeping.sweep", Entity: "retention"}
	if err := entry.SetAfter(result); err != nil {
		s.logger.Error("housekeeping audit encode failed", "error", err)
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("housekeeping audit write failed", "error", err)
	}
}
