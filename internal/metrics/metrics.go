package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the radar's Prometheus metrics. A nil *Collector is valid
// and records nothing, which keeps wiring optional in tests.
type Collector struct {
	gatherer prometheus.Gatherer

	FixesTotal        *prometheus.CounterVec
	SyncWrites        *prometheus.CounterVec
	QueryDuration     prometheus.Histogram
	QueryResults      prometheus.Histogram
	QueryFailures     *prometheus.CounterVec
	ActiveTrackers    prometheus.Gauge
	BreakerState      *prometheus.GaugeVec
	AcquisitionErrors *prometheus.CounterVec
	SweptRecords      prometheus.Counter
}

// NewCollector registers radar metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		FixesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_position_fixes_total",
			Help: "Raw position fixes seen by trackers, labeled by outcome (accepted, suppressed).",
		}, []string{"outcome"}),
		SyncWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_sync_writes_total",
			Help: "Location store writes issued by sync adapters, labeled by kind and result.",
		}, []string{"kind", "result"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_discovery_query_duration_seconds",
			Help:    "Nearby discovery query latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		QueryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_discovery_results",
			Help:    "Number of radar users returned per discovery query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		QueryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_discovery_failures_total",
			Help: "Discovery queries that degraded to an empty result, labeled by reason.",
		}, []string{"reason"}),
		ActiveTrackers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_active_trackers",
			Help: "Trackers currently acquiring positions.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radar_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		AcquisitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_acquisition_errors_total",
			Help: "Position acquisition errors, labeled by classified code.",
		}, []string{"code"}),
		SweptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_swept_records_total",
			Help: "Stale location index entries removed by the sweeper.",
		}),
	}

	collectors := []prometheus.Collector{
		c.FixesTotal, c.SyncWrites, c.QueryDuration, c.QueryResults, c.QueryFailures,
		c.ActiveTrackers, c.BreakerState, c.AcquisitionErrors, c.SweptRecords,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// Gatherer exposes the registry backing this collector for /metrics.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

func (c *Collector) Fix(accepted bool) {
	if c == nil {
		return
	}
	outcome := "suppressed"
	if accepted {
		outcome = "accepted"
	}
	c.FixesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) SyncWrite(kind string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SyncWrites.WithLabelValues(kind, result).Inc()
}

func (c *Collector) Query(duration time.Duration, results int) {
	if c == nil {
		return
	}
	c.QueryDuration.Observe(duration.Seconds())
	c.QueryResults.Observe(float64(results))
}

func (c *Collector) QueryFailed(reason string) {
	if c == nil {
		return
	}
	c.QueryFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) TrackerStarted() {
	if c == nil {
		return
	}
	c.ActiveTrackers.Inc()
}

func (c *Collector) TrackerStopped() {
	if c == nil {
		return
	}
	c.ActiveTrackers.Dec()
}

func (c *Collector) Breaker(name string, state float64) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(state)
}

func (c *Collector) AcquisitionError(code string) {
	if c == nil {
		return
	}
	c.AcquisitionErrors.WithLabelValues(code).Inc()
}

func (c *Collector) Swept(n int) {
	if c == nil {
		return
	}
	c.SweptRecords.Add(float64(n))
}
