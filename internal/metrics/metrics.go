package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planproc_stage_events_total",
			Help: "Stage-completion events by stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: applied, duplicate, dropped
	)

	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planproc_phase_transitions_total",
			Help: "Plan phase transitions by source and destination phase",
		},
		[]string{"from", "to"},
	)

	plansFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planproc_plans_failed_total",
			Help: "Plans marked failed by reason class",
		},
		[]string{"reason"},
	)

	activePlans = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planproc_active_plans",
			Help: "Plans currently in a non-terminal phase",
		},
	)

	mutationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planproc_mutation_duration_seconds",
			Help:    "Plan state mutation latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)
)

// Outcome classifies how a stage event was absorbed.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
)

// Collector provides nil-safe convenience methods for recording metrics.
type Collector struct{}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordEvent counts one stage event by outcome.
func (c *Collector) RecordEvent(stage string, outcome Outcome) {
	if c == nil {
		return
	}
	eventsTotal.WithLabelValues(stage, string(outcome)).Inc()
}

// RecordTransition counts one phase transition.
func (c *Collector) RecordTransition(from, to string) {
	if c == nil {
		return
	}
	phaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordFailure counts one failed plan by reason class.
func (c *Collector) RecordFailure(reason string) {
	if c == nil {
		return
	}
	plansFailedTotal.WithLabelValues(reason).Inc()
}

// PlanStarted bumps the active plan gauge.
func (c *Collector) PlanStarted() {
	if c == nil {
		return
	}
	activePlans.Inc()
}

// PlanFinished drops the active plan gauge.
func (c *Collector) PlanFinished() {
	if c == nil {
		return
	}
	activePlans.Dec()
}

// ObserveMutation records one plan state mutation's latency.
func (c *Collector) ObserveMutation(elapsed time.Duration) {
	if c == nil {
		return
	}
	mutationDuration.Observe(elapsed.Seconds())
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
