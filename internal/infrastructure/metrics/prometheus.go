// Package metrics records core events as Prometheus metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/macrolens/productcheck/internal/domain"
)

const namespace = "productcheck"

// Prometheus implements domain.Metrics on its own registry
type Prometheus struct {
	registry      *prometheus.Registry
	sourceCalls   *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
	suggestions   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// Options configures the recorder
type Options struct {
	// GoMetrics adds Go runtime and process collectors
	GoMetrics bool
}

// NewPrometheus creates a recorder with all collectors registered
func NewPrometheus(opt Options) *Prometheus {
	registry := prometheus.NewRegistry()
	if opt.GoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	p := &Prometheus{
		registry: registry,
		sourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_calls_total",
			Help:      "Source calls by source, operation and outcome.",
		}, []string{"source", "op", "outcome"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_call_duration_seconds",
			Help:      "Source call latency.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"source", "op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_cache_lookups_total",
			Help:      "Suggestion cache lookups by result.",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suggestion_cache_entries",
			Help:      "Entries held by the suggestion cache.",
		}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_total",
			Help:      "Suggestion requests by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verifications by mode and final state.",
		}, []string{"mode", "state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		p.sourceCalls, p.sourceLatency,
		p.cacheLookups, p.cacheEntries,
		p.suggestions, p.verifications,
		p.httpRequests, p.httpLatency,
	)
	return p
}

// Registry exposes the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveSource(source, op, outcome string, elapsed time.Duration) {
	p.sourceCalls.WithLabelValues(source, op, outcome).Inc()
	p.sourceLatency.WithLabelValues(source, op).Observe(elapsed.Seconds())
}

func (p *Prometheus) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *Prometheus) CacheSize(n int) {
	p.cacheEntries.Set(float64(n))
}

func (p *Prometheus) Suggestion(outcome string) {
	p.suggestions.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) Verification(mode domain.Mode, state domain.SessionState) {
	p.verifications.WithLabelValues(string(mode), string(state)).Inc()
}

// ObserveHTTP records one served request. route is the matched route template.
func (p *Prometheus) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	p.httpRequests.WithLabelValues(method, route, status).Inc()
	p.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

var _ domain.Metrics = (*Prometheus)(nil)
