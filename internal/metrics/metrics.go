// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected with 429, by limiter policy.",
		},
		[]string{"policy"},
	)

	AuditEntriesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_recorded_total",
		Help: "Audit entries persisted.",
	})

	AuditWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit entries that could not be persisted, by stage.",
		},
		[]string{"stage"},
	)

	FailedLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_failed_logins_total",
		Help: "Failed login attempts.",
	})

	SecurityAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_security_alerts_total",
		Help: "Failed-login threshold crossings.",
	})

	UploadCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upload_circuit_breaker_state",
			Help: "Upload backend circuit state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"name"},
	)
)
