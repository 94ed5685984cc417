// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bizwallet"

var (
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger units of work by operation and result.",
		},
		[]string{"operation", "result"},
	)
	reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "reconciliations_total",
			Help:      "Payment reconciliation outcomes by delivery path and result.",
		},
		[]string{"path", "result"},
	)
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Provider webhook deliveries by event type and result.",
		},
		[]string{"event_type", "result"},
	)
	refundRetriesEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "refund_retries_enqueued_total",
			Help:      "Booking refunds handed to the retry queue after a failed inline attempt.",
		},
	)
	autoRechargeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auto_recharge",
			Name:      "attempts_total",
			Help:      "Auto-recharge attempts by terminal status.",
		},
		[]string{"status"},
	)
)

// Result label helpers.
const (
	ResultOK       = "ok"
	ResultDup      = "already_processed"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultIgnored  = "ignored"
)

func LedgerOperation(op, result string) {
	ledgerOperationsTotal.WithLabelValues(op, result).Inc()
}

func Reconciliation(path, result string) {
	reconciliationsTotal.WithLabelValues(path, result).Inc()
}

func WebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

func RefundRetryEnqueued() {
	refundRetriesEnqueued.Inc()
}

func AutoRechargeAttempt(status string) {
	autoRechargeAttemptsTotal.WithLabelValues(status).Inc()
}
