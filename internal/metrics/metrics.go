package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsRoutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hooks_events_routed_total",
			Help: "Total number of events routed to subscriptions.",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooks_deliveries_total",
			Help: "Total number of delivery outcomes by status.",
		},
		[]string{"status"}, // succeeded, retry_scheduled, failed_final, cancelled
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooks_retries_total",
			Help: "Total number of delivery retries by failure reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	BreakerOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hooks_breaker_opened_total",
			Help: "Total number of circuit breaker open transitions.",
		},
	)

	BreakerSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooks_breaker_skips_total",
			Help: "Deliveries skipped or deferred because a circuit was open.",
		},
		[]string{"stage"}, // route, attempt
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hooks_delivery_duration_seconds",
			Help:    "Outbound webhook attempt duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	DueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hooks_due_backlog",
			Help: "Number of deliveries currently due for an attempt.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsRoutedTotal,
		DeliveriesTotal,
		RetriesTotal,
		BreakerOpenedTotal,
		BreakerSkipsTotal,
		DeliveryDuration,
		DueBacklog,
	)
}

// RecordEventRouted increments the routed-event counter.
func RecordEventRouted() {
	EventsRoutedTotal.Inc()
}

// RecordDelivery records a delivery outcome and its attempt latency.
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	if latency > 0 {
		DeliveryDuration.Observe(latency.Seconds())
	}
}

// RecordRetry increments the retry counter for a failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordBreakerOpen increments the breaker-open transition counter.
func RecordBreakerOpen() {
	BreakerOpenedTotal.Inc()
}

// RecordBreakerSkip counts a delivery skipped at route time or deferred at attempt time.
func RecordBreakerSkip(stage string) {
	BreakerSkipsTotal.WithLabelValues(stage).Inc()
}

// UpdateDueBacklog sets the due-delivery backlog gauge.
func UpdateDueBacklog(n float64) {
	DueBacklog.Set(n)
}
