package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unihub_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unihub_settlements_total",
			Help: "Ticket settlements by method and result",
		},
		[]string{"method", "result"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unihub_ledger_entries_total",
			Help: "Ledger entries appended by type",
		},
		[]string{"type"},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unihub_refunds_total",
			Help: "Participant refunds issued by cancellation sweeps",
		},
	)

	PayoutTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unihub_payout_transitions_total",
			Help: "Payout state transitions",
		},
		[]string{"to"},
	)

	CheckinsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unihub_checkins_total",
			Help: "Participants checked in",
		},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unihub_sweep_seconds",
			Help:    "Duration of scheduler sweeps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	WebhookRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unihub_webhook_rejected_total",
			Help: "Webhook deliveries rejected at signature verification",
		},
	)

	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unihub_compensation_failures_total",
			Help: "Debit reversals that could not be applied and need manual reconciliation",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unihub_rate_limit_exceeded_total",
			Help: "Requests dropped by the rate limiter",
		},
	)
)
