// Package metrics collects the Prometheus counters and histograms that feed
// the router's scoring strategies and the operator-facing health surface
// (§4.10). Metrics are process-local and never persisted by the core —
// persistence, if any, is an external collaborator scraping /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps the metric families the orchestration core records.
type Registry struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerLoad     *prometheus.GaugeVec

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec
	toolCacheHit *prometheus.CounterVec

	searchExecutions *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	searchFallbacks  *prometheus.CounterVec

	isolationViolations *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Registry with all metric families registered against a
// fresh prometheus.Registry (never the global default, so tests and
// multiple orchestrator instances in one process never collide).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "provider", Name: "requests_total",
			Help: "Total requests attempted per provider.",
		}, []string{"provider"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "provider", Name: "errors_total",
			Help: "Total failed requests per provider.",
		}, []string{"provider", "code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge", Subsystem: "provider", Name: "latency_seconds",
			Help:    "Provider response latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		providerLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "forge", Subsystem: "provider", Name: "current_load",
			Help: "In-flight request count per provider.",
		}, []string{"provider"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "tool", Name: "calls_total",
			Help: "Total tool invocations.",
		}, []string{"tool", "category"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge", Subsystem: "tool", Name: "duration_seconds",
			Help:    "Tool execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "tool", Name: "errors_total",
			Help: "Total failed tool invocations.",
		}, []string{"tool"}),
		toolCacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "tool", Name: "cache_hits_total",
			Help: "Tool-result cache hits.",
		}, []string{"tool"}),
		searchExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "search", Name: "executions_total",
			Help: "Total search executions by strategy.",
		}, []string{"strategy"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge", Subsystem: "search", Name: "duration_seconds",
			Help:    "Search execution duration by strategy.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		searchFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "search", Name: "fallbacks_total",
			Help: "Search fallback invocations.",
		}, []string{"from_strategy", "to_strategy"}),
		isolationViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "isolation", Name: "violations_total",
			Help: "Recorded isolation violations by level.",
		}, []string{"level"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge", Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests handled by the ingress server (§6.2).",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forge", Subsystem: "http", Name: "duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.providerRequests, r.providerErrors, r.providerLatency, r.providerLoad,
		r.toolCalls, r.toolDuration, r.toolErrors, r.toolCacheHit,
		r.searchExecutions, r.searchDuration, r.searchFallbacks,
		r.isolationViolations, r.httpRequests, r.httpDuration,
	)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// RecordProviderAttempt records the outcome and latency of a single
// provider attempt, updating the request/error/latency families (§4.10).
func (r *Registry) RecordProviderAttempt(provider string, d time.Duration, errCode string) {
	r.providerRequests.WithLabelValues(provider).Inc()
	r.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
	if errCode != "" {
		r.providerErrors.WithLabelValues(provider, errCode).Inc()
	}
}

// SetProviderLoad publishes the current in-flight count for provider.
func (r *Registry) SetProviderLoad(provider string, load int) {
	r.providerLoad.WithLabelValues(provider).Set(float64(load))
}

// RecordToolCall records a tool invocation's category, duration and outcome.
func (r *Registry) RecordToolCall(tool, category string, d time.Duration, success bool) {
	r.toolCalls.WithLabelValues(tool, category).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
	if !success {
		r.toolErrors.WithLabelValues(tool).Inc()
	}
}

// RecordToolCacheHit increments the cache-hit counter for tool.
func (r *Registry) RecordToolCacheHit(tool string) {
	r.toolCacheHit.WithLabelValues(tool).Inc()
}

// RecordSearch records one search execution's strategy and duration.
func (r *Registry) RecordSearch(strategy string, d time.Duration) {
	r.searchExecutions.WithLabelValues(strategy).Inc()
	r.searchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordSearchFallback records a fallback from one strategy to another.
func (r *Registry) RecordSearchFallback(from, to string) {
	r.searchFallbacks.WithLabelValues(from, to).Inc()
}

// RecordIsolationViolation increments the violation counter for level.
func (r *Registry) RecordIsolationViolation(level string) {
	r.isolationViolations.WithLabelValues(level).Inc()
}

// RecordHTTPRequest records one served request against the §6.2 ingress
// surface: route pattern (e.g. "/request"), method, status class and
// duration.
func (r *Registry) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
