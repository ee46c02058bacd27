package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal       *prometheus.CounterVec
	circuitTransitions *prometheus.CounterVec
	alphaScore         *prometheus.GaugeVec
	admitVerdicts      *prometheus.CounterVec
	fillsTotal         *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapilot_signals_total",
				Help: "Signals ingested per source and asset",
			},
			[]string{"source", "asset"},
		),
		circuitTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapilot_circuit_transitions_total",
				Help: "Circuit breaker state transitions per source",
			},
			[]string{"source", "from", "to"},
		),
		alphaScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alphapilot_alpha_score",
				Help: "Last composite alpha score per asset",
			},
			[]string{"asset", "tier"},
		),
		admitVerdicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapilot_admit_verdicts_total",
				Help: "Risk governor admit verdicts",
			},
			[]string{"verdict"},
		),
		fillsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapilot_fills_total",
				Help: "Executed fills per mode and reason",
			},
			[]string{"mode", "reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphapilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphapilot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records one ingested signal.
func (r *Recorder) RecordSignal(sourceID, assetID string) {
	r.signalsTotal.WithLabelValues(sourceID, assetID).Inc()
}

// RecordCircuitTransition records a breaker state change.
func (r *Recorder) RecordCircuitTransition(sourceID, from, to string) {
	r.circuitTransitions.WithLabelValues(sourceID, from, to).Inc()
}

// RecordAlphaScore records the last composite score for an asset.
func (r *Recorder) RecordAlphaScore(assetID string, composite float64, tier string) {
	r.alphaScore.WithLabelValues(assetID, tier).Set(composite)
}

// RecordAdmit records a risk governor verdict.
func (r *Recorder) RecordAdmit(verdict string) {
	r.admitVerdicts.WithLabelValues(verdict).Inc()
}

// RecordFill records an executed fill.
func (r *Recorder) RecordFill(mode, reason string) {
	r.fillsTotal.WithLabelValues(mode, reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
