// Package syncworker drives the sync-queue sweep on a timer. Deployments
// without an external cron scheduler run this in-process; deployments with
// one disable it and hit the cron endpoint instead. The Redis lease keeps
// the two from sweeping concurrently.
package syncworker

import (
	"context"
	"time"

	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type sweeper interface {
	ProcessPending(ctx context.Context) (syncqueue.SweepResult, error)
}

// Worker periodically sweeps the sync queue.
type Worker struct {
	processor sweeper
	logger    *logging.Logger
	interval  time.Duration
}

// NewWorker builds a sweep worker.
func NewWorker(processor sweeper, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		processor: processor,
		logger:    logger,
		interval:  1 * time.Minute,
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Run sweeps immediately, then on every tick until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if w.processor == nil {
		return
	}
	result, err := w.processor.ProcessPending(ctx)
	if err != nil {
		w.logger.Error("sync sweep failed", "error", err)
		return
	}
	if result.Processed > 0 {
		w.logger.Info("sync sweep",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"exhausted", result.Exhausted)
	}
}
