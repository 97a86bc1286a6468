// Package metrics implements the in-memory Metrics of spec.md §4.7 (per-
// model request/success/failure/latency/token counters, session-level
// cache-hit accounting) and mirrors every recorded event into Prometheus
// for the admin surface to scrape.
//
// Grounded on the teacher's internal/telemetry.Metrics — promauto-backed
// CounterVec/HistogramVec construction and a RecordX(labels) entry point —
// relabeled from the teacher's org/team/classification dimensions (not
// needed; there is no multi-tenant Non-goal here) to model/provider.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ModelStats is the append-only, per-model counter set of spec.md §3.
type ModelStats struct {
	Queries         int64
	Successes       int64
	Failures        int64
	TotalLatencyMs  int64
	TotalTokens     int64
	LastQueryMs     int64 // unix millis
}

// AvgLatencyMs is TotalLatencyMs / Queries, or 0 with no queries yet.
func (s ModelStats) AvgLatencyMs() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(s.Queries)
}

// SuccessRate is Successes / Queries, defined as 1.0 with no queries yet.
func (s ModelStats) SuccessRate() float64 {
	if s.Queries == 0 {
		return 1.0
	}
	return float64(s.Successes) / float64(s.Queries)
}

// SessionSummary is the process-lifetime, cross-model summary of spec.md §3.
type SessionSummary struct {
	TotalQueries     int64
	TotalFailures    int64
	CacheHits        int64
	CacheTokensSaved int64
}

// Metrics owns the in-memory per-model/session counters and their
// Prometheus mirror. There is no decay: counts are append-only within the
// process lifetime, per spec.md §4.7.
type Metrics struct {
	mu       sync.Mutex
	perModel map[string]*ModelStats
	session  SessionSummary

	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	latencyMs      *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	cacheHitsTotal prometheus.Counter
	cacheTokens    prometheus.Counter
}

// New creates a Metrics instance with its own Prometheus registry (rather
// than the global default registerer) so multiple instances — one per
// test, say — never collide on duplicate series registration. Registry
// exposes it for the admin mux's /metrics handler.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		perModel: make(map[string]*ModelStats),
		registry: reg,

		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydramcp_request_total",
			Help: "Total number of backend queries, by model/provider/status.",
		}, []string{"model", "provider", "status"}),

		latencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hydramcp_request_latency_ms",
			Help:    "Backend query latency in milliseconds, excluding cache hits.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hydramcp_tokens_total",
			Help: "Total tokens processed, by model/direction.",
		}, []string{"model", "direction"}),

		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydramcp_cache_hits_total",
			Help: "Total ResponseCache hits across the session.",
		}),

		cacheTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "hydramcp_cache_tokens_saved_total",
			Help: "Total completion tokens saved by serving from the ResponseCache.",
		}),
	}
}

// Registry exposes the Prometheus registry backing this Metrics instance,
// for the admin mux's /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) statsFor(model string) *ModelStats {
	s, ok := m.perModel[model]
	if !ok {
		s = &ModelStats{}
		m.perModel[model] = s
	}
	return s
}

// RecordSuccess records one successful, non-cached query.
func (m *Metrics) RecordSuccess(modelID, provider string, latencyMs int64, tokens int) {
	m.mu.Lock()
	s := m.statsFor(modelID)
	s.Queries++
	s.Successes++
	s.TotalLatencyMs += latencyMs
	s.TotalTokens += int64(tokens)
	s.LastQueryMs = time.Now().UnixMilli()
	m.session.TotalQueries++
	m.mu.Unlock()

	m.requestTotal.WithLabelValues(modelID, provider, "success").Inc()
	m.latencyMs.WithLabelValues(modelID, provider).Observe(float64(latencyMs))
	if tokens > 0 {
		m.tokensTotal.WithLabelValues(modelID, "total").Add(float64(tokens))
	}
}

// RecordFailure records one failed query. latencyMs is 0 when the failure
// never reached the backend (validation, circuit-open).
func (m *Metrics) RecordFailure(modelID, provider string, latencyMs int64) {
	m.mu.Lock()
	s := m.statsFor(modelID)
	s.Queries++
	s.Failures++
	s.TotalLatencyMs += latencyMs
	s.LastQueryMs = time.Now().UnixMilli()
	m.session.TotalQueries++
	m.session.TotalFailures++
	m.mu.Unlock()

	m.requestTotal.WithLabelValues(modelID, provider, "failure").Inc()
	if latencyMs > 0 {
		m.latencyMs.WithLabelValues(modelID, provider).Observe(float64(latencyMs))
	}
}

// RecordCacheHit records a zero-latency success served from the
// ResponseCache, per spec.md §4.8 step 2.
func (m *Metrics) RecordCacheHit(modelID, provider string, tokens int) {
	m.mu.Lock()
	s := m.statsFor(modelID)
	s.Queries++
	s.Successes++
	s.TotalTokens += int64(tokens)
	s.LastQueryMs = time.Now().UnixMilli()
	m.session.TotalQueries++
	m.session.CacheHits++
	m.session.CacheTokensSaved += int64(tokens)
	m.mu.Unlock()

	m.requestTotal.WithLabelValues(modelID, provider, "cache_hit").Inc()
	m.cacheHitsTotal.Inc()
	if tokens > 0 {
		m.cacheTokens.Add(float64(tokens))
	}
}

// ModelStats returns a snapshot of the per-model counters. The zero value
// is returned for a model never queried.
func (m *Metrics) ModelStats(modelID string) ModelStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.perModel[modelID]
	if !ok {
		return ModelStats{}
	}
	return *s
}

// Session returns a snapshot of the session-level summary.
func (m *Metrics) Session() SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}
