package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photofix_edits_total",
			Help: "Edit operations by operation type and terminal status",
		},
		[]string{"operation", "status"},
	)

	CreditsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photofix_credits_consumed_total",
			Help: "Credits charged for completed edits",
		},
	)

	// CreditDebitFailures counts completions whose credit charge failed
	// after the provider already did the work. Non-zero means the books
	// need reconciling.
	CreditDebitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photofix_credit_debit_failures_total",
			Help: "Completed edits whose credit debit failed",
		},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "photofix_provider_request_seconds",
			Help: "Latency of AI provider calls in seconds",
		},
		[]string{"operation"},
	)

	SubscriptionsPurchased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photofix_subscriptions_purchased_total",
			Help: "Subscriptions activated by plan type",
		},
		[]string{"plan_type"},
	)
)
