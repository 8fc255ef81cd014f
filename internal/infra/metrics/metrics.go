package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for conversions.
const (
	OutcomeSuccess      = "success"
	OutcomeCacheHit     = "cache_hit"
	OutcomeBadInput     = "bad_input"
	OutcomeConversion   = "conversion_failed"
	OutcomeInternal     = "internal_error"
	OutcomeUnauthorized = "unauthorized"
)

// Metrics holds the service collectors.
type Metrics struct {
	conversions     *prometheus.CounterVec
	duration        prometheus.Histogram
	inputBytes      prometheus.Histogram
	inflight        prometheus.Gauge
	cleanupFailures prometheus.Counter
	swept           prometheus.Counter
}

// New creates the collectors and registers them with r.
func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdf2docx_requests_total",
				Help: "Conversion requests by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdf2docx_convert_duration_seconds",
				Help:    "Time spent in the external converter",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		inputBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdf2docx_input_bytes",
				Help:    "Size of staged PDF inputs",
				Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
			},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdf2docx_inflight_requests",
				Help: "Conversion requests currently being handled",
			},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pdf2docx_cleanup_failures_total",
				Help: "Staged files that could not be removed",
			},
		),
		swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pdf2docx_swept_files_total",
				Help: "Orphaned staged files removed by the startup sweep",
			},
		),
	}
	r.MustRegister(m.conversions, m.duration, m.inputBytes, m.inflight, m.cleanupFailures, m.swept)
	return m
}

// RecordOutcome increments the request counter for outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.conversions.WithLabelValues(outcome).Inc()
}

// ObserveConvert records time spent in the converter.
func (m *Metrics) ObserveConvert(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

// ObserveInput records the size of a staged input.
func (m *Metrics) ObserveInput(n int64) {
	m.inputBytes.Observe(float64(n))
}

// Begin marks a request as in flight and returns the matching end func.
func (m *Metrics) Begin() func() {
	m.inflight.Inc()
	return m.inflight.Dec
}

// RecordCleanupFailure counts a staged file left on disk.
func (m *Metrics) RecordCleanupFailure() {
	m.cleanupFailures.Inc()
}

// RecordSwept counts files removed by the orphan sweep.
func (m *Metrics) RecordSwept(n int) {
	m.swept.Add(float64(n))
}
