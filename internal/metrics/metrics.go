// Package metrics exposes Prometheus instrumentation for the
// verification/ticketing/notification pipeline with careful attention to
// label cardinality: statuses and priorities are small closed sets, never
// raw identifiers. All collectors are safe for concurrent use and are
// registered with the default registry at package init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ticketsCreated counts issue tickets opened by verification, by priority.
	ticketsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grn_tickets_created_total",
			Help: "Total number of issue tickets created from goods-receipt mismatches.",
		},
		[]string{"priority"},
	)

	// verifications counts processed verification requests by resulting status.
	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grn_verifications_total",
			Help: "Total number of goods-receipt verification attempts.",
		},
		[]string{"status"},
	)

	// notificationsSent / notificationsFailed count per-endpoint outcomes.
	notificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of endpoints successfully notified.",
		},
	)
	notificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of endpoint deliveries that failed.",
		},
	)

	// endpointsDeactivated counts tokens turned off after the gateway
	// reported them permanently invalid.
	endpointsDeactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "device_tokens_deactivated_total",
			Help: "Total number of device tokens deactivated as permanently invalid.",
		},
	)

	// deliveryDuration records the wall time of one logical SendToUser,
	// including all gateway batches.
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Duration of a logical per-user notification delivery in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// retrySweeps counts sweeper passes and their reprocessed records.
	retrySweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retry_sweeps_total",
			Help: "Total number of retry sweeper passes.",
		},
	)
	retriedNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of notification retry attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ticketsCreated,
		verifications,
		notificationsSent,
		notificationsFailed,
		endpointsDeactivated,
		deliveryDuration,
		retrySweeps,
		retriedNotifications,
	)
}

// TicketCreated records one ticket creation with its computed priority.
func TicketCreated(priority string) { ticketsCreated.WithLabelValues(priority).Inc() }

// VerificationProcessed records one verification attempt and its resulting
// goods-receipt status ("rejected" for precondition failures).
func VerificationProcessed(status string) { verifications.WithLabelValues(status).Inc() }

// DeliveryOutcome records the per-endpoint counts of one logical delivery.
func DeliveryOutcome(sent, failed int) {
	notificationsSent.Add(float64(sent))
	notificationsFailed.Add(float64(failed))
}

// EndpointsDeactivated records tokens deactivated after gateway rejection.
func EndpointsDeactivated(n int) { endpointsDeactivated.Add(float64(n)) }

// ObserveDelivery records the duration of one logical per-user delivery.
func ObserveDelivery(d time.Duration) { deliveryDuration.Observe(d.Seconds()) }

// RetrySweep records one sweeper pass.
func RetrySweep() { retrySweeps.Inc() }

// RetryOutcome records one re-delivery attempt result ("succeeded"/"failed").
func RetryOutcome(outcome string) { retriedNotifications.WithLabelValues(outcome).Inc() }
