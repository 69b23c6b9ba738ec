// Package metrics exposes the scoring worker's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rank request outcomes.
const (
	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

// Metrics holds the worker's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rankRequests *prometheus.CounterVec
	rankDuration prometheus.Histogram
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
}

// New creates a registry with the rank and embedding cache metrics plus the
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		rankRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lia_rank_requests_total",
				Help: "Total number of rank requests by outcome",
			},
			[]string{"status"},
		),
		rankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lia_rank_duration_seconds",
				Help:    "Rank request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lia_embedding_cache_hits_total",
				Help: "Embeddings served from the in-memory cache",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lia_embedding_cache_misses_total",
				Help: "Embeddings computed by the embedder",
			},
		),
	}

	registry.MustRegister(m.rankRequests, m.rankDuration, m.cacheHits, m.cacheMisses)
	return m
}

// ObserveRank records one rank request.
func (m *Metrics) ObserveRank(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.rankRequests.WithLabelValues(status).Inc()
	m.rankDuration.Observe(d.Seconds())
}

// CacheHits adds n embedding cache hits.
func (m *Metrics) CacheHits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheHits.Add(float64(n))
}

// CacheMisses adds n embedding cache misses.
func (m *Metrics) CacheMisses(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheMisses.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
