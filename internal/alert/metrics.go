package alert

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names for the alert lifecycle.
const (
	MetricCreated        = "sos_alerts_created_total"
	MetricTransitions    = "sos_alert_transitions_total"
	MetricResponseTime   = "sos_alert_response_time_seconds"
	MetricDispatchPanics = "sos_alert_dispatch_panics_total"
)

// Metrics holds Prometheus metrics for the alert service.
type Metrics struct {
	created        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	responseTime   prometheus.Histogram
	dispatchPanics prometheus.Counter
}

// NewMetrics creates a new alert metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCreated,
			Help: "Total number of SOS alerts created by priority and source",
		}, []string{"priority", "source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTransitions,
			Help: "Total number of alert lifecycle transitions",
		}, []string{"from", "to"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricResponseTime,
			Help:    "Seconds from alert creation to resolution",
			Buckets: []float64{30, 60, 120, 300, 600, 1800, 3600, 7200},
		}),
		dispatchPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDispatchPanics,
			Help: "Total number of recovered panics in background dispatch",
		}),
	}
}

// Register registers all alert metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.created, m.transitions, m.responseTime, m.dispatchPanics} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCreated increments the created-alert counter.
func (m *Metrics) RecordCreated(priority, source string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(priority, source).Inc()
}

// RecordTransition increments the transition counter.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveResponseTime records a creation-to-resolution span.
func (m *Metrics) ObserveResponseTime(d time.Duration) {
	if m == nil {
		return
	}
	m.responseTime.Observe(d.Seconds())
}

// RecordDispatchPanic increments the recovered-panic counter.
func (m *Metrics) RecordDispatchPanic() {
	if m == nil {
		return
	}
	m.dispatchPanics.Inc()
}
