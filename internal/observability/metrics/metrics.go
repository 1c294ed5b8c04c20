package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the scheduling engine.
type EngineMetrics struct {
	mutationsTotal *prometheus.CounterVec
	strikesTotal   prometheus.Counter
	sweepItems     *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	queueDepth     *prometheus.GaugeVec
	scoresComputed prometheus.Counter
	scoreErrors    prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "grid",
			Name:      "mutations_total",
			Help:      "Slot grid mutation attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
		strikesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "strikes",
			Name:      "issued_total",
			Help:      "Strikes issued for emergency cancellations with bookings",
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "syncqueue",
			Name:      "sweep_items_total",
			Help:      "Queue items handled by sweeps, by outcome",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "syncqueue",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sync queue sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scheduling",
			Subsystem: "syncqueue",
			Name:      "depth",
			Help:      "Queue items by status",
		}, []string{"status"}),
		scoresComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "scoring",
			Name:      "snapshots_total",
			Help:      "Score snapshots persisted by recompute runs",
		}),
		scoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "scoring",
			Name:      "errors_total",
			Help:      "Providers skipped during recompute runs",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.mutationsTotal, m.strikesTotal, m.sweepItems, m.sweepDuration, m.queueDepth, m.scoresComputed, m.scoreErrors)
	return m
}

func (m *EngineMetrics) ObserveMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *EngineMetrics) ObserveStrike() {
	if m == nil {
		return
	}
	m.strikesTotal.Inc()
}

func (m *EngineMetrics) ObserveSweep(succeeded, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues("succeeded").Add(float64(succeeded))
	m.sweepItems.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(seconds)
}

func (m *EngineMetrics) SetQueueDepth(pending, processing, done, failed int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("pending").Set(float64(pending))
	m.queueDepth.WithLabelValues("processing").Set(float64(processing))
	m.queueDepth.WithLabelValues("done").Set(float64(done))
	m.queueDepth.WithLabelValues("failed").Set(float64(failed))
}

func (m *EngineMetrics) ObserveScores(updated, errored int) {
	if m == nil {
		return
	}
	m.scoresComputed.Add(float64(updated))
	m.scoreErrors.Add(float64(errored))
}
