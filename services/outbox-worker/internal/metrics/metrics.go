package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OutboxSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_sent_total",
		Help: "Outbox events accepted by the broker",
	}, []string{"event_type"})
	OutboxPublishErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "Failed outbox publish attempts",
	}, []string{"event_type"})
	OutboxStuckTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_stuck_total",
		Help: "Publish failures of events past the alert threshold",
	})
	OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending",
		Help: "Outbox events not yet published",
	})
)

func init() {
	prometheus.MustRegister(OutboxSentTotal, OutboxPublishErrorsTotal, OutboxStuckTotal, OutboxPending)
}
