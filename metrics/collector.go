package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check outcomes reported to a Collector.
const (
	OutcomeQuiet       = "quiet"
	OutcomeNotify      = "notify"
	OutcomeError       = "error"
	OutcomeBreakerOpen = "breaker_open"
	OutcomeUnknown     = "unknown"
)

// Selection sources reported to a Collector.
const (
	SelectionDecider    = "decider"
	SelectionFallback   = "fallback"
	SelectionQuietHours = "quiet_hours"
)

// Collector receives live counters for scraping. Unlike Recorder it never
// fails and never blocks.
type Collector interface {
	ObserveCycle(status string, duration time.Duration, executed, notified int)
	ObserveCheck(checkID, outcome string, duration time.Duration)
	ObserveSelection(source string)
	ObserveBreakerTrip(checkID string)
}

// NopCollector discards all observations.
type NopCollector struct{}

// Compile-time assertion that NopCollector implements Collector.
var _ Collector = NopCollector{}

func (NopCollector) ObserveCycle(string, time.Duration, int, int) {}
func (NopCollector) ObserveCheck(string, string, time.Duration)  {}
func (NopCollector) ObserveSelection(string)                     {}
func (NopCollector) ObserveBreakerTrip(string)                   {}

// OrNop returns c, or a NopCollector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return NopCollector{}
	}
	return c
}

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	gatherer  prometheus.Gatherer
	namespace string
	once      sync.Once

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	executed      prometheus.Counter
	notified      prometheus.Counter
	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	selections    *prometheus.CounterVec
	breakerTrips  *prometheus.CounterVec
	lastCycle     prometheus.Gauge
}

// Compile-time assertion that PrometheusCollector implements Collector.
var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registered on reg.
//
// Parameters:
//   - reg: registry for the metrics (a fresh registry if nil)
//   - namespace: metrics namespace (defaults to "pulse" if empty)
func NewPrometheus(reg *prometheus.Registry, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "pulse"
	}
	p := &PrometheusCollector{reg: reg, gatherer: reg, namespace: namespace}
	p.ensureRegistered()
	return p
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "cycles_total",
			Help:      "Completed heartbeat cycles by status.",
		}, []string{"status"})
		p.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of heartbeat cycles in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		})
		p.executed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "checks_executed_total",
			Help:      "Checks executed across all cycles.",
		})
		p.notified = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "notifications_total",
			Help:      "Notification attempts across all cycles.",
		})
		p.lastCycle = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		})

		p.checks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "check",
			Name:      "runs_total",
			Help:      "Check executions by check id and outcome.",
		}, []string{"check", "outcome"})
		p.checkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "check",
			Name:      "duration_seconds",
			Help:      "Check execution time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~260s
		}, []string{"check"})

		p.selections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "decision",
			Name:      "selections_total",
			Help:      "Check selections by source (decider, fallback, quiet_hours).",
		}, []string{"source"})

		p.breakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Circuit breaker trips by check id.",
		}, []string{"check"})

		p.reg.MustRegister(p.cycles)
		p.reg.MustRegister(p.cycleDuration)
		p.reg.MustRegister(p.executed)
		p.reg.MustRegister(p.notified)
		p.reg.MustRegister(p.lastCycle)
		p.reg.MustRegister(p.checks)
		p.reg.MustRegister(p.checkDuration)
		p.reg.MustRegister(p.selections)
		p.reg.MustRegister(p.breakerTrips)
	})
}

func (p *PrometheusCollector) ObserveCycle(status string, duration time.Duration, executed, notified int) {
	p.cycles.WithLabelValues(status).Inc()
	p.cycleDuration.Observe(duration.Seconds())
	p.executed.Add(float64(executed))
	p.notified.Add(float64(notified))
	p.lastCycle.SetToCurrentTime()
}

func (p *PrometheusCollector) ObserveCheck(checkID, outcome string, duration time.Duration) {
	p.checks.WithLabelValues(checkID, outcome).Inc()
	if outcome != OutcomeBreakerOpen && outcome != OutcomeUnknown {
		p.checkDuration.WithLabelValues(checkID).Observe(duration.Seconds())
	}
}

func (p *PrometheusCollector) ObserveSelection(source string) {
	p.selections.WithLabelValues(source).Inc()
}

func (p *PrometheusCollector) ObserveBreakerTrip(checkID string) {
	p.breakerTrips.WithLabelValues(checkID).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (p *PrometheusCollector) Gatherer() prometheus.Gatherer {
	return p.gatherer
}
