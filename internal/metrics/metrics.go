// Package metrics holds the Prometheus collectors for World generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "profileworld"

type Metrics struct {
	registry *prometheus.Registry

	generations       *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	enrichFailures    *prometheus.CounterVec
	purged            prometheus.Counter
}

// New builds a private registry with the process and Go collectors plus
// the application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	m := &Metrics{
		registry: reg,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "World generation requests by outcome.",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent building a new World, from fetch to commit.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		enrichFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Per-repository enrichment calls that failed and were skipped.",
		}, []string{"call"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worlds_purged_total",
			Help:      "Expired Worlds removed by the janitor.",
		}),
	}
	reg.MustRegister(m.generations, m.generationSeconds, m.enrichFailures, m.purged)
	return m
}

// The methods below are nil-safe so tests can pass a nil *Metrics.

func (m *Metrics) ObserveGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(d.Seconds())
}

func (m *Metrics) EnrichmentFailed(call string) {
	if m == nil {
		return
	}
	m.enrichFailures.WithLabelValues(call).Inc()
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
