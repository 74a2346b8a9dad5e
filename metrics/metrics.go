package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests by method and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vietrank_http_requests_total",
		Help: "HTTP requests served, by method and status class.",
	}, []string{"method", "status"})

	// BidsPlaced counts bids that opened a checkout session.
	BidsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vietrank_bids_placed_total",
		Help: "Bids accepted and sent to the payment gateway.",
	})

	// BidsConfirmed counts bids promoted to CONFIRMED by webhook.
	BidsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vietrank_bids_confirmed_total",
		Help: "Bids confirmed by payment webhook deliveries.",
	})

	// WebhookEvents counts webhook deliveries by event kind and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vietrank_webhook_events_total",
		Help: "Payment webhook deliveries, by event kind and outcome.",
	}, []string{"kind", "outcome"})

	// RegistryReads counts attestation registry lookups by outcome.
	RegistryReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vietrank_registry_reads_total",
		Help: "Attestation registry reads, by outcome.",
	}, []string{"outcome"})
)
