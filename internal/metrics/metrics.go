package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_webhooks_received_total",
		Help: "Inbound provider webhook deliveries by provider and result.",
	}, []string{"provider", "result"})

	TransitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_transitions_applied_total",
		Help: "Invoice status transitions applied, by resulting status.",
	}, []string{"status"})

	NotificationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_notifications_published_total",
		Help: "Payment notifications handed to the mailer.",
	})

	AuthRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_provider_auth_requests_total",
		Help: "Outbound authentication calls to the payment provider.",
	})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_provider_errors_total",
		Help: "Failed provider API calls by operation.",
	}, []string{"operation"})
)
