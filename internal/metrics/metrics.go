// Package metrics exposes Prometheus collectors for the search core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SearchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tonearm",
		Name:      "searches_total",
		Help:      "Total number of federated searches executed.",
	})

	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tonearm",
		Name:      "search_duration_seconds",
		Help:      "Federated search duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
	})

	AdapterFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tonearm",
		Name:      "adapter_failures_total",
		Help:      "Total adapter search failures by adapter name.",
	}, []string{"adapter"})

	AdapterHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tonearm",
		Name:      "adapter_healthy",
		Help:      "Whether an adapter is currently healthy (1) or tripped (0).",
	}, []string{"adapter"})
)

// Register registers all collectors with the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SearchesTotal,
		SearchDuration,
		AdapterFailuresTotal,
		AdapterHealthy,
	)
}
