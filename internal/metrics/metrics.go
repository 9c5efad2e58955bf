// Package metrics holds the Prometheus instruments of the fetch pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	OutcomeLoaded = "loaded"
	OutcomeCached = "cached"
	OutcomeShared = "shared"
	OutcomeFailed = "failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheEntries  prometheus.Gauge
	Rejections    *prometheus.CounterVec
	BytesRead     prometheus.Counter
	FetchDuration prometheus.Histogram
}

// New creates the instruments and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoguard_fetches_total",
			Help: "Fetch calls by outcome",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoguard_cache_hits_total",
			Help: "Geography cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoguard_cache_misses_total",
			Help: "Geography cache misses",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoguard_cache_entries",
			Help: "Geographies held in the cache",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoguard_rejections_total",
			Help: "Failed fetches by error kind and reason",
		}, []string{"kind", "reason"}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoguard_response_bytes_total",
			Help: "Bytes read from remote geography responses",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geoguard_fetch_duration_ms",
			Help:    "Remote load duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Fetches, m.CacheHits, m.CacheMisses, m.CacheEntries,
			m.Rejections, m.BytesRead, m.FetchDuration,
		)
	}

	return m
}

// Fetch counts a finished Fetch call.
func (m *Metrics) Fetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

// Cache counts a cache lookup.
func (m *Metrics) Cache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

// Entries sets the cache size gauge.
func (m *Metrics) Entries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// Reject counts a failed fetch.
func (m *Metrics) Reject(kind, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(kind, reason).Inc()
}

// Loaded records a completed remote load.
func (m *Metrics) Loaded(n int, took time.Duration) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
	m.FetchDuration.Observe(float64(took.Milliseconds()))
}

// Handler serves the instruments of g on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
