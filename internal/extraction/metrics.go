package extraction

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the extraction pipeline.
type Metrics struct {
	DocumentsTotal    *prometheus.CounterVec
	ItemsTotal        *prometheus.CounterVec
	ItemsDroppedTotal prometheus.Counter
	InferenceDuration *prometheus.HistogramVec
	SinkErrorsTotal   prometheus.Counter
	InFlight          prometheus.Gauge
}

// NewMetrics creates and registers the extraction metrics.
//
// Registration happens once per process; later calls return the same set.
//
// Metrics:
//   - taskharvester_documents_total{outcome} - documents by outcome (ok, skipped, or a failure kind)
//   - taskharvester_items_total{tier} - action items by review tier
//   - taskharvester_items_dropped_total - candidates dropped during normalization
//   - taskharvester_inference_duration_seconds{outcome} - inference call latency
//   - taskharvester_sink_errors_total - result sink failures
//   - taskharvester_documents_in_flight - documents currently being processed
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DocumentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "taskharvester_documents_total",
					Help: "Total number of documents processed, by outcome",
				},
				[]string{"outcome"},
			),
			ItemsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "taskharvester_items_total",
					Help: "Total number of action items extracted, by review tier",
				},
				[]string{"tier"},
			),
			ItemsDroppedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "taskharvester_items_dropped_total",
					Help: "Total number of candidate items dropped during normalization",
				},
			),
			InferenceDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "taskharvester_inference_duration_seconds",
					Help:    "Duration of inference calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
				},
				[]string{"outcome"},
			),
			SinkErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "taskharvester_sink_errors_total",
					Help: "Total number of result sink failures",
				},
			),
			InFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "taskharvester_documents_in_flight",
					Help: "Number of documents currently being processed",
				},
			),
		}
	})
	return globalMetrics
}

// RecordDocument records a finished document and its items.
func (m *Metrics) RecordDocument(r DocumentResult) {
	outcome := "ok"
	switch {
	case r.Failure != nil:
		outcome = string(r.Failure.Kind)
	case r.Skipped:
		outcome = "skipped"
	}
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
	for _, item := range r.Items {
		m.ItemsTotal.WithLabelValues(string(item.Tier)).Inc()
	}
	if r.Dropped > 0 {
		m.ItemsDroppedTotal.Add(float64(r.Dropped))
	}
}

// RecordInference records the latency of one inference call.
func (m *Metrics) RecordInference(outcome string, seconds float64) {
	m.InferenceDuration.WithLabelValues(outcome).Observe(seconds)
}
