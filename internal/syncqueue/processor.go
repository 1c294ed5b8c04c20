package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicops/scheduling-engine/internal/audit"
	"github.com/clinicops/scheduling-engine/internal/observability/metrics"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

// Reconciler pushes one queue item to the external system of record. The
// call must be idempotent: the item id travels as the idempotency key.
type Reconciler interface {
	Reconcile(ctx context.Context, item Item) error
}

type itemStore interface {
	ClaimPending(ctx context.Context, limit int, requeueOlderThan time.Time) ([]Item, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	Stats(ctx context.Context) (Stats, error)
}

type lease interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

type auditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Processor drains pending items under the process-wide sweep lease.
type Processor struct {
	store      itemStore
	reconciler Reconciler
	lease      lease
	logger     *logging.Logger
	metrics    *metrics.EngineMetrics
	auditor    auditLog
	tracer     trace.Tracer
	batchSize  int
	staleAfter time.Duration
}

// NewProcessor creates a sweep processor.
func NewProcessor(store itemStore, reconciler Reconciler, lease lease, logger *logging.Logger, m *metrics.EngineMetrics) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		store:      store,
		reconciler: reconciler,
		lease:      lease,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("syncqueue"),
		batchSize:  25,
		staleAfter: 2 * time.Minute,
	}
}

// WithBatchSize overrides how many items one sweep claims.
func (p *Processor) WithBatchSize(n int) *Processor {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

// WithStaleClaimAfter sets how old a processing claim must be before a sweep
// reclaims it. Keep this at or above the sweep-lease TTL so a live sweep's
// rows are never stolen.
func (p *Processor) WithStaleClaimAfter(d time.Duration) *Processor {
	if d > 0 {
		p.staleAfter = d
	}
	return p
}

// WithAuditor records each completed sweep in the audit trail.
func (p *Processor) WithAuditor(a auditLog) *Processor {
	p.auditor = a
	return p
}

// ProcessPending runs one sweep. Redundant concurrent invocations are safe:
// whoever loses the lease race returns an empty result. Each claimed item is
// touched at most once per sweep; an item that fails with attempts remaining
// goes back to pending for a later sweep.
func (p *Processor) ProcessPending(ctx context.Context) (SweepResult, error) {
	ctx, span := p.tracer.Start(ctx, "syncqueue.sweep")
	defer span.End()

	release, acquired, err := p.lease.Acquire(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	if !acquired {
		p.logger.Debug("sweep lease held elsewhere, skipping")
		return SweepResult{}, nil
	}
	defer release()

	started := time.Now()
	items, err := p.store.ClaimPending(ctx, p.batchSize, time.Now().UTC().Add(-p.staleAfter))
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, item := range items {
		result.Processed++
		if err := p.reconciler.Reconcile(ctx, item); err != nil {
			result.Failed++
			if item.Attempts+1 >= item.MaxAttempts {
				result.Exhausted++
				err = fmt.Errorf("%w after %d attempts: %v", ErrItemExhausted, item.Attempts+1, err)
				if markErr := p.store.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
					p.logger.Error("mark failed errored", "error", markErr, "item_id", item.ID)
				}
				p.logger.Error("sync item exhausted", "item_id", item.ID,
					"payload_type", item.PayloadType, "attempts", item.Attempts+1, "error", err)
				continue
			}
			if markErr := p.store.MarkRetry(ctx, item.ID, err.Error()); markErr != nil {
				p.logger.Error("mark retry errored", "error", markErr, "item_id", item.ID)
			}
			p.logger.Warn("sync item retried", "item_id", item.ID,
				"payload_type", item.PayloadType, "attempts", item.Attempts+1, "error", err)
			continue
		}
		result.Succeeded++
		if markErr := p.store.MarkDone(ctx, item.ID); markErr != nil {
			p.logger.Error("mark done errored", "error", markErr, "item_id", item.ID)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.processed", result.Processed),
		attribute.Int("sweep.succeeded", result.Succeeded),
		attribute.Int("sweep.failed", result.Failed),
	)
	p.metrics.ObserveSweep(result.Succeeded, result.Failed, time.Since(started).Seconds())
	if stats, err := p.store.Stats(ctx); err == nil {
		p.metrics.SetQueueDepth(stats.Pending, stats.Processing, stats.Done, stats.Failed)
	}
	if result.Processed > 0 {
		p.logger.Info("sync sweep finished", "processed", result.Processed,
			"succeeded", result.Succeeded, "failed", result.Failed, "exhausted", result.Exhausted)
	}
	p.recordSweep(ctx, result)
	return result, nil
}

// recordSweep appends the sweep outcome to the audit trail, best-effort.
func (p *Processor) recordSweep(ctx context.Context, result SweepResult) {
	if p.auditor == nil {
		return
	}
	entry := audit.Entry{Action: "sync.sweep", Entity: "syncqueue"}
	if err := entry.SetAfter(result); err != nil {
		p.logger.Error("sweep audit encode failed", "error", err)
		return
	}
	if err := p.auditor.Record(ctx, entry); err != nil {
		p.logger.Error("sweep audit write failed", "error", err)
	}
}

// Stats surfaces queue depth for dashboards.
func (p *Processor) Stats(ctx context.Context) (Stats, error) {
	return p.store.Stats(ctx)
}
