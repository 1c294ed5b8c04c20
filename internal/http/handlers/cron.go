package handlers

import (
	"context"
	"net/http"

	"github.com/clinicops/scheduling-engine/internal/housekeeping"
	"github.com/clinicops/scheduling-engine/internal/scoring"
	"github.com/clinicops/scheduling-engine/internal/syncqueue"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

type sweepRunner interface {
	ProcessPending(ctx context.Context) (syncqueue.SweepResult, error)
}

type scoreRecomputer interface {
	RecomputeAll(ctx context.Context, batch []scoring.ProviderMetrics) (scoring.RecomputeResult, error)
}

type metricsBatchSource interface {
	PerformanceBatch(ctx context.Context) ([]scoring.ProviderMetrics, error)
}

type retentionRunner interface {
	Run(ctx context.Context) (housekeeping.Result, error)
}

// CronHandler serves the scheduler-invoked endpoints. Each one runs a full
// pass synchronously and reports what it did; the external cron owns the
// cadence.
type CronHandler struct {
	sweeper      sweepRunner
	engine       scoreRecomputer
	performance  metricsBatchSource
	housekeeping retentionRunner
	logger       *logging.Logger
}

// NewCronHandler creates the cron handler.
func NewCronHandler(sweeper sweepRunner, engine scoreRecomputer, performance metricsBatchSource, hk retentionRunner, logger *logging.Logger) *CronHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CronHandler{
		sweeper:      sweeper,
		engine:       engine,
		performance:  performance,
		housekeeping: hk,
		logger:       logger,
	}
}

// SyncSweep handles POST /internal/cron/sync-sweep. A sweep skipped because
// another instance holds the lease is still a 200; the work happened
// elsewhere.
func (h *CronHandler) SyncSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.ProcessPending(r.Context())
	if err != nil {
		h.logger.Error("cron sync sweep failed", "error", err)
		http.Error(w, "sync sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecomputeScores handles POST /internal/cron/recompute-scores
func (h *CronHandler) RecomputeScores(w http.ResponseWriter, r *http.Request) {
	batch, err := h.performance.PerformanceBatch(r.Context())
	if err != nil {
		h.logger.Error("performance batch fetch failed", "error", err)
		http.Error(w, "performance data unavailable", http.StatusBadGateway)
		return
	}
	result, err := h.engine.RecomputeAll(r.Context(), batch)
	if err != nil {
		h.logger.Error("score recompute failed", "error", err)
		http.Error(w, "score recompute failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Housekeeping handles POST /internal/cron/housekeeping
func (h *CronHandler) Housekeeping(w http.ResponseWriter, r *http.Request) {
	result, err := h.housekeeping.Run(r.Context())
	if err != nil {
		h.logger.Error("housekeeping failed", "error", err)
		http.Error(w, "housekeeping failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
