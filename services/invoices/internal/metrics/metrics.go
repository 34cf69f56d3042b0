package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Deliveries processed by outcome",
	}, []string{"service", "event_type", "outcome"})
	EventsDeadLetteredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dead_lettered_total",
		Help: "Deliveries moved to the dead-letter queue by reason",
	}, []string{"service", "reason"})
	EventsRetriedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_retried_total",
		Help: "Deliveries sent to a delayed retry tier",
	}, []string{"service", "event_type"})
	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_handler_duration_seconds",
		Help:    "Event handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "event_type"})
)

func init() {
	prometheus.MustRegister(EventsConsumedTotal, EventsDeadLetteredTotal, EventsRetriedTotal, HandlerDuration)
}
