// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersCreated counts orders materialized from payments.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders materialized from succeeded payments.",
	})

	// DuplicateDeliveries counts payment signals resolved to an existing
	// order.
	DuplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_duplicate_payment_deliveries_total",
		Help: "Payment deliveries that matched an already materialized order.",
	})

	// ReconcileFailures counts failed materializations by reason.
	ReconcileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_reconcile_failures_total",
		Help: "Order materializations that rolled back, by reason.",
	}, []string{"reason"})

	// OrphanedPayments counts captured payments with no order.
	OrphanedPayments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_orphaned_payments_total",
		Help: "Captured payments for which no order could be materialized.",
	})

	// WebhookEvents counts inbound provider events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Inbound payment provider webhook events.",
	}, []string{"type", "outcome"})

	// MaterializeDuration observes the latency of successful order
	// materializations.
	MaterializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orders_materialize_duration_seconds",
		Help:    "Duration of successful order materializations.",
		Buckets: prometheus.DefBuckets,
	})
)
