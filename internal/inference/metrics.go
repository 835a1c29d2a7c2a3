package inference

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce  sync.Once
	cacheLookups *prometheus.CounterVec
)

// initMetrics registers the package metrics once per process.
//
// Metrics:
//   - taskharvester_inference_cache_lookups_total{result} - hits and misses of the response cache
func initMetrics() {
	metricsOnce.Do(func() {
		cacheLookups = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskharvester_inference_cache_lookups_total",
				Help: "Total number of inference response cache lookups",
			},
			[]string{"result"}, // "hit" or "miss"
		)
	})
}

func recordCacheLookup(hit bool) {
	initMetrics()
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}
