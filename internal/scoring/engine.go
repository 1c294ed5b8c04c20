// Package scoring computes normalized provider performance scores and
// drives tier re-resolution.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/scheduling-engine/internal/observability/metrics"
	"github.com/clinicops/scheduling-engine/internal/provider"
	"github.com/clinicops/scheduling-engine/internal/tier"
	"github.com/clinicops/scheduling-engine/pkg/logging"
)

// ErrMetricsUnavailable marks a provider skipped during a recompute run.
var ErrMetricsUnavailable = errors.New("scoring: metrics unavailable")

// ErrInvalidWeights marks a weight pair that does not sum to one.
var ErrInvalidWeights = errors.New("scoring: weights must sum to 1")

const weightEpsilon = 1e-6

// Weights are the global score weights, shared across all providers.
type Weights struct {
	Conversion float64 `json:"conversion"`
	AvgTicket  float64 `json:"avg_ticket"`
}

// Validate checks the weights sum to 1 within epsilon.
func (w Weights) Validate() error {
	if w.Conversion < 0 || w.AvgTicket < 0 {
		return fmt.Errorf("%w: negative weight", ErrInvalidWeights)
	}
	if math.Abs(w.Conversion+w.AvgTicket-1) > weightEpsilon {
		return fmt.Errorf("%w: got %.6f", ErrInvalidWeights, w.Conversion+w.AvgTicket)
	}
	return nil
}

// ProviderMetrics is one provider's raw input to a recompute run.
type ProviderMetrics struct {
	ProviderID            uuid.UUID
	Conversion            float64 // rate in [0,1]
	AvgTicket             float64 // normalized in [0,1]
	CompletedAppointments int
}

// ProviderError records one provider's failure inside a batch.
type ProviderError struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Reason     string    `json:"reason"`
}

// RecomputeResult reports a batch outcome. Partial success is expected.
type RecomputeResult struct {
	Updated int             `json:"updated"`
	Errors  []ProviderError `json:"errors"`
}

type snapshotStore interface {
	Insert(ctx context.Context, snap *Snapshot) error
}

type standingStore interface {
	Ensure(ctx context.Context, q provider.DB, providerID uuid.UUID, fallbackTier string) (*provider.Standing, error)
	SetTier(ctx context.Context, q provider.DB, providerID uuid.UUID, tierName string) error
}

// Engine computes percentile-based scores. Percentile rank against the
// run's population, not the raw value, feeds the score so providers with
// very different volumes stay comparable.
type Engine struct {
	weights   Weights
	tiers     *tier.Table
	snapshots snapshotStore
	standings standingStore
	locks     *provider.LockArena
	logger    *logging.Logger
	metrics   *metrics.EngineMetrics
	now       func() time.Time
}

// NewEngine creates a score engine. Weights must already be validated.
func NewEngine(weights Weights, tiers *tier.Table, snapshots snapshotStore, standings standingStore, locks *provider.LockArena, logger *logging.Logger, m *metrics.EngineMetrics) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	if locks == nil {
		locks = provider.NewLockArena()
	}
	return &Engine{
		weights:   weights,
		tiers:     tiers,
		snapshots: snapshots,
		standings: standings,
		locks:     locks,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Score computes the weighted score from two percentile ranks.
func (e *Engine) Score(conversionPercentile, ticketPercentile float64) float64 {
	return conversionPercentile*e.weights.Conversion + ticketPercentile*e.weights.AvgTicket
}

// RecomputeAll runs one single-pass batch: percentile ranks across the full
// population, snapshot persistence, and per-provider tier re-resolution.
// One provider's bad data lands in Errors and never aborts the batch. The
// batch holds no per-provider lock; only each tier re-resolution step does.
func (e *Engine) RecomputeAll(ctx context.Context, batch []ProviderMetrics) (RecomputeResult, error) {
	var result RecomputeResult

	valid := make([]ProviderMetrics, 0, len(batch))
	for _, m := range batch {
		if reason, ok := checkMetrics(m); !ok {
			result.Errors = append(result.Errors, ProviderError{ProviderID: m.ProviderID, Reason: reason})
			e.logger.Warn("provider skipped in recompute", "provider_id", m.ProviderID, "reason", reason)
			continue
		}
		valid = append(valid, m)
	}

	conversions := make([]float64, len(valid))
	tickets := make([]float64, len(valid))
	for i, m := range valid {
		conversions[i] = m.Conversion
		tickets[i] = m.AvgTicket
	}
	convRank := newPercentileRanker(conversions)
	ticketRank := newPercentileRanker(tickets)

	computedAt := e.now()
	for _, m := range valid {
		pc := convRank.rank(m.Conversion)
		pt := ticketRank.rank(m.AvgTicket)
		snap := &Snapshot{
			ID:                   uuid.New(),
			ProviderID:           m.ProviderID,
			ConversionPercentile: pc,
			TicketPercentile:     pt,
			Score:                e.Score(pc, pt),
			ComputedAt:           computedAt,
		}
		if err := e.snapshots.Insert(ctx, snap); err != nil {
			result.Errors = append(result.Errors, ProviderError{ProviderID: m.ProviderID, Reason: err.Error()})
			continue
		}
		if err := e.reassignTier(ctx, m, snap.Score); err != nil {
			result.Errors = append(result.Errors, ProviderError{ProviderID: m.ProviderID, Reason: err.Error()})
			continue
		}
		result.Updated++
	}

	e.metrics.ObserveScores(result.Updated, len(result.Errors))
	e.logger.Info("score recompute finished", "updated", result.Updated, "errors", len(result.Errors))
	return result, nil
}

// reassignTier is the short locked step: resolve the tier from the fresh
// score and persist it on the standing row.
func (e *Engine) reassignTier(ctx context.Context, m ProviderMetrics, score float64) error {
	unlock := e.locks.Lock(m.ProviderID)
	defer unlock()

	resolved := e.tiers.Resolve(tier.Metrics{Score: score, CompletedAppointments: m.CompletedAppointments})
	if _, err := e.standings.Ensure(ctx, nil, m.ProviderID, e.tiers.Lowest().Name); err != nil {
		return err
	}
	return e.standings.SetTier(ctx, nil, m.ProviderID, resolved.Name)
}

func checkMetrics(m ProviderMetrics) (string, bool) {
	switch {
	case m.ProviderID == uuid.Nil:
		return "missing provider id", false
	case math.IsNaN(m.Conversion) || m.Conversion < 0 || m.Conversion > 1:
		return fmt.Sprintf("%v: conversion out of range", ErrMetricsUnavailable), false
	case math.IsNaN(m.AvgTicket) || m.AvgTicket < 0 || m.AvgTicket > 1:
		return fmt.Sprintf("%v: avg ticket out of range", ErrMetricsUnavailable), false
	case m.CompletedAppointments < 0:
		return fmt.Sprintf("%v: negative appointment count", ErrMetricsUnavailable), false
	}
	return "", true
}

// percentileRanker maps a value to its percent rank within the population:
// the share of strictly smaller values over n-1, scaled to [0,100]. A
// population of one ranks at 100.
type percentileRanker struct {
	sorted []float64
}

func newPercentileRanker(values []float64) *percentileRanker {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return &percentileRanker{sorted: sorted}
}

func (r *percentileRanker) rank(v float64) float64 {
	n := len(r.sorted)
	if n <= 1 {
		return 100
	}
	below := sort.SearchFloat64s(r.sorted, v)
	return 100 * float64(below) / float64(n-1)
}
