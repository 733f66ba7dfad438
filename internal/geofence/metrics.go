package geofence

import "github.com/prometheus/client_golang/prometheus"

// Metric names for geofence evaluation.
const (
	MetricEvents           = "geofence_events_total"
	MetricEscalations      = "geofence_escalations_total"
	MetricEscalationErrors = "geofence_escalation_errors_total"
)

// Metrics holds Prometheus metrics for the evaluator.
type Metrics struct {
	events           *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	escalationErrors prometheus.Counter
}

// NewMetrics creates a new geofence metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEvents,
			Help: "Total number of geofence boundary crossings by kind and direction",
		}, []string{"kind", "transition"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEscalations,
			Help: "Total number of crossings escalated into SOS alerts",
		}, []string{"kind"}),
		escalationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEscalationErrors,
			Help: "Total number of failed escalation attempts",
		}),
	}
}

// Register registers all geofence metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.events, m.escalations, m.escalationErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent increments the crossing counter.
func (m *Metrics) RecordEvent(kind, transition string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, transition).Inc()
}

// RecordEscalation increments the escalation counter.
func (m *Metrics) RecordEscalation(kind string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(kind).Inc()
}

// RecordEscalationError increments the failed-escalation counter.
func (m *Metrics) RecordEscalationError() {
	if m == nil {
		return
	}
	m.escalationErrors.Inc()
}
