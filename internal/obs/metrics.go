// Package obs holds the process-wide Prometheus metrics for the auth
// service. Metrics are registered once on a dedicated registry so tests can
// construct isolated instances.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login attempt result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultLocked  = "locked"
)

type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts   *prometheus.CounterVec
	Lockouts        prometheus.Counter
	TokenRotations  prometheus.Counter
	PermCacheHits   prometheus.Counter
	PermCacheMisses prometheus.Counter
	AuditFailures   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after reaching the failed-attempt threshold.",
		}),
		TokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "token_rotations_total",
			Help:      "Successful refresh token rotations.",
		}),
		PermCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "permission_cache_hits_total",
			Help:      "Permission resolutions served from the TTL cache.",
		}),
		PermCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "permission_cache_misses_total",
			Help:      "Permission resolutions that had to load role permissions from the store.",
		}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orgauth",
			Name:      "audit_write_failures_total",
			Help:      "Operation log writes that failed and were degraded to log output.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoginAttempts,
		m.Lockouts,
		m.TokenRotations,
		m.PermCacheHits,
		m.PermCacheMisses,
		m.AuditFailures,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
