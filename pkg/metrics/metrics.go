package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcraft_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// RoleChecks counts role-gate evaluations and their outcome (allowed|denied).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcraft_role_checks_total",
			Help: "Total number of workspace role checks",
		},
		[]string{"result"},
	)

	// SweepRuns counts recurring-invoice sweep executions by result
	// (success|partial|skipped).
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcraft_sweep_runs_total",
			Help: "Total number of recurring-invoice sweep passes",
		},
		[]string{"result"},
	)

	// InvoicesGenerated counts invoices materialised from recurring templates.
	InvoicesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billcraft_recurring_invoices_generated_total",
			Help: "Total number of invoices generated from recurring templates",
		},
	)

	// WebhookEvents counts inbound billing webhook events by type and result
	// (applied|ignored|rejected).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billcraft_webhook_events_total",
			Help: "Total number of billing webhook events received",
		},
		[]string{"type", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billcraft_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
