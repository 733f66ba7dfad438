package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names for notification delivery.
const (
	MetricAttempts         = "notification_attempts_total"
	MetricDeliveryDuration = "notification_delivery_duration_seconds"
)

// Metrics holds Prometheus metrics for the dispatcher.
type Metrics struct {
	attempts         *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
}

// NewMetrics creates a new notification metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAttempts,
			Help: "Total number of delivery attempts by channel and final status",
		}, []string{"channel", "status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricDeliveryDuration,
			Help:    "Time one provider call took",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
	}
}

// Register registers all notification metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.attempts, m.deliveryDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordAttempt increments the attempt counter.
func (m *Metrics) RecordAttempt(channel, status string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(channel, status).Inc()
}

// ObserveDeliveryDuration records how long one provider call took.
func (m *Metrics) ObserveDeliveryDuration(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
}
