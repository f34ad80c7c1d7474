package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records access-control decisions.
type Metrics interface {
	// RecordRateLimitDecision counts one window decision for a limiter scope (api_key, ip)
	RecordRateLimitDecision(scope, window string, allowed bool)

	// RecordRateLimitFailOpen counts a limiter call admitted because the backend failed
	RecordRateLimitFailOpen(scope string)

	// RecordValidation counts key validation outcomes (ok, invalid_format, not_found, ...)
	RecordValidation(outcome string)

	// RecordUsageEvent counts usage pipeline outcomes (queued, dropped, recorded, failed)
	RecordUsageEvent(outcome string)
}

// PrometheusMetrics exposes counters through a dedicated registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	rateLimitDecisions *prometheus.CounterVec
	rateLimitFailOpen  *prometheus.CounterVec
	validations        *prometheus.CounterVec
	usageEvents        *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyguard",
			Name:      "rate_limit_decisions_total",
			Help:      "Sliding window decisions by limiter scope, window and result.",
		}, []string{"scope", "window", "result"}),
		rateLimitFailOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyguard",
			Name:      "rate_limit_fail_open_total",
			Help:      "Requests admitted because the rate limit backend was unavailable.",
		}, []string{"scope"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyguard",
			Name:      "api_key_validations_total",
			Help:      "API key validation outcomes.",
		}, []string{"outcome"}),
		usageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyguard",
			Name:      "usage_events_total",
			Help:      "Usage pipeline outcomes.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.rateLimitDecisions,
		m.rateLimitFailOpen,
		m.validations,
		m.usageEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *PrometheusMetrics) RecordRateLimitDecision(scope, window string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.rateLimitDecisions.WithLabelValues(scope, window, result).Inc()
}

func (m *PrometheusMetrics) RecordRateLimitFailOpen(scope string) {
	m.rateLimitFailOpen.WithLabelValues(scope).Inc()
}

func (m *PrometheusMetrics) RecordValidation(outcome string) {
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordUsageEvent(outcome string) {
	m.usageEvents.WithLabelValues(outcome).Inc()
}

// PoolStats is a snapshot of a client connection pool
type PoolStats struct {
	TotalConns uint32
	IdleConns  uint32
	Timeouts   uint32
}

// RegisterDBStats exports the pool statistics of db
func (m *PrometheusMetrics) RegisterDBStats(db *sql.DB) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, "keyguard"))
}

// RegisterRedisPool exports Redis pool statistics, read on every scrape
func (m *PrometheusMetrics) RegisterRedisPool(read func() PoolStats) error {
	gauge := func(name, help string, value func(PoolStats) uint32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "keyguard",
			Subsystem: "redis_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(read())) })
	}

	for _, c := range []prometheus.Collector{
		gauge("total_conns", "Connections in the Redis pool.", func(s PoolStats) uint32 { return s.TotalConns }),
		gauge("idle_conns", "Idle connections in the Redis pool.", func(s PoolStats) uint32 { return s.IdleConns }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "keyguard",
			Subsystem: "redis_pool",
			Name:      "timeouts_total",
			Help:      "Times a connection could not be taken from the Redis pool in time.",
		}, func() float64 { return float64(read().Timeouts) }),
	} {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the underlying registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NoopMetrics discards everything
type NoopMetrics struct{}

// NewNoopMetrics returns a Metrics that records nothing
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (NoopMetrics) RecordRateLimitDecision(scope, window string, allowed bool) {}
func (NoopMetrics) RecordRateLimitFailOpen(scope string)                       {}
func (NoopMetrics) RecordValidation(outcome string)                            {}
func (NoopMetrics) RecordUsageEvent(outcome string)                            {}
