package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability.
type BusinessMetrics struct {
	// Reconciliation
	ReconciliationsTotal *prometheus.CounterVec
	ReconciliationErrors *prometheus.CounterVec
	VersionConflicts     prometheus.Counter
	DuplicateMutations   prometheus.Counter
	ReconcileDuration    prometheus.Histogram
	MutationAmount       *prometheus.HistogramVec

	// Account standing
	StandingTransitions *prometheus.CounterVec
	LateFeesAssessed    prometheus.Counter
	LateFeeAmount       prometheus.Counter

	// Overdue sweep
	SweepRuns            prometheus.Counter
	RecordsMarkedOverdue prometheus.Counter

	// Identifier generation
	SequenceAllocations *prometheus.CounterVec

	// Notifications
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	InvoicesIssued      prometheus.Counter

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec

	// External API performance
	ProviderAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "tally"
	}

	subsystem := "business"

	m := &BusinessMetrics{
		ReconciliationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconciliations_total",
				Help:      "Total billing record mutations reconciled",
			},
			[]string{"operation"}, // operation: create, update, delete
		),
		ReconciliationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconciliation_errors_total",
				Help:      "Total reconciliation failures",
			},
			[]string{"operation", "error_code"},
		),
		VersionConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "version_conflicts_total",
				Help:      "Total optimistic concurrency conflicts on account updates",
			},
		),
		DuplicateMutations: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duplicate_mutations_total",
				Help:      "Total replayed mutations short-circuited by the idempotency guard",
			},
		),
		ReconcileDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_duration_seconds",
				Help:      "Reconciliation transaction duration",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		MutationAmount: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "mutation_amount_cents",
				Help:      "Billing record amount distribution in cents",
				Buckets:   []float64{1000, 2500, 5000, 10000, 25000, 50000, 100000, 250000},
			},
			[]string{"operation"},
		),

		StandingTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "standing_transitions_total",
				Help:      "Total payment standing transitions",
			},
			[]string{"from", "to"}, // current, late
		),
		LateFeesAssessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "late_fees_assessed_total",
				Help:      "Total late fees assessed",
			},
		),
		LateFeeAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "late_fee_amount_cents",
				Help:      "Total late fee amount in cents",
			},
		),

		SweepRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "overdue_sweep_runs_total",
				Help:      "Total overdue sweep executions",
			},
		),
		RecordsMarkedOverdue: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "records_marked_overdue_total",
				Help:      "Total billing records transitioned to overdue",
			},
		),

		SequenceAllocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "sequence_allocations_total",
				Help:      "Total identifier sequence values allocated",
			},
			[]string{"scope"},
		),

		NotificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_sent_total",
				Help:      "Total notifications delivered by type",
			},
			[]string{"notification_type"}, // billing_notice, overdue_notice
		),
		NotificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_failed_total",
				Help:      "Total notification delivery failures",
			},
			[]string{"notification_type", "stage"}, // stage: invoice, email
		),
		InvoicesIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoices_issued_total",
				Help:      "Total external invoices finalized",
			},
		),

		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhooks successfully processed",
			},
			[]string{"event_type"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhook processing failures",
			},
			[]string{"event_type", "error_type"},
		),

		ProviderAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_api_duration_seconds",
				Help:      "Invoicing provider API call duration",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"}, // create_customer, create_invoice, finalize_invoice, etc.
		),
	}

	return m
}

// Global instance for easy access from handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
