// Package metrics holds the Prometheus collectors shared by the credit service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credits"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 90},
	}, []string{"route"})

	// GenerationsTotal counts external generation jobs by outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "jobs_total",
		Help:      "External generation jobs by outcome.",
	}, []string{"outcome"})

	// GenerationPolls observes how many status polls a job needed.
	GenerationPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "polls",
		Help:      "Status polls issued per generation job.",
		Buckets:   prometheus.LinearBuckets(0, 5, 7),
	})

	// CreditsDebitedTotal sums credits removed by metered actions.
	CreditsDebitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "debited_total",
		Help:      "Credits debited by metered actions.",
	})

	// CreditsGrantedTotal sums credits added by grants.
	CreditsGrantedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "granted_total",
		Help:      "Credits granted by reason.",
	}, []string{"reason"})

	// RenewalResetsTotal counts balance resets applied by the renewal reconciler.
	RenewalResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "renewal_resets_total",
		Help:      "Balance resets applied after a billing period elapsed.",
	})

	// EntitlementDenialsTotal counts gate denials by reason.
	EntitlementDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "entitlement_denials_total",
		Help:      "Entitlement gate denials by reason.",
	}, []string{"reason"})

	// WebhookEventsTotal counts payment webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
)
