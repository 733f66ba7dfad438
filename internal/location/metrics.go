package location

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names for the location pipeline.
const (
	MetricSamplesIngested   = "location_samples_ingested_total"
	MetricSamplesRejected   = "location_samples_rejected_total"
	MetricSamplesOutOfOrder = "location_samples_out_of_order_total"
	MetricSideEffectErrors  = "location_side_effect_errors_total"
	MetricStreamSubscribers = "location_stream_subscribers"
	MetricFanoutDelivered   = "location_fanout_delivered_total"
	MetricFanoutDropped     = "location_fanout_dropped_total"
	MetricFanoutDuration    = "location_fanout_duration_seconds"
)

// Metrics holds Prometheus metrics for ingest and live streaming.
type Metrics struct {
	samplesIngested   prometheus.Counter
	samplesRejected   *prometheus.CounterVec
	samplesOutOfOrder prometheus.Counter
	sideEffectErrors  *prometheus.CounterVec
	streamSubscribers prometheus.Gauge
	fanoutDelivered   *prometheus.CounterVec
	fanoutDropped     *prometheus.CounterVec
	fanoutDuration    prometheus.Histogram
}

// NewMetrics creates a new location metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		samplesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesIngested,
			Help: "Total number of location samples accepted and persisted",
		}),
		samplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSamplesRejected,
			Help: "Total number of location samples rejected at validation",
		}, []string{"reason"}),
		samplesOutOfOrder: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSamplesOutOfOrder,
			Help: "Total number of samples flagged as out of capture order",
		}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSideEffectErrors,
			Help: "Total number of ingest side effect failures",
		}, []string{"effect"}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricStreamSubscribers,
			Help: "Current number of live stream subscribers",
		}),
		fanoutDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFanoutDelivered,
			Help: "Total number of stream frames delivered to subscribers",
		}, []string{"type"}),
		fanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFanoutDropped,
			Help: "Total number of stream frames dropped for slow subscribers",
		}, []string{"type"}),
		fanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFanoutDuration,
			Help:    "Time spent fanning one event out to all subscribers",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
	}
}

// Register registers all location metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.samplesIngested,
		m.samplesRejected,
		m.samplesOutOfOrder,
		m.sideEffectErrors,
		m.streamSubscribers,
		m.fanoutDelivered,
		m.fanoutDropped,
		m.fanoutDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordSampleIngested increments the accepted-sample counter.
func (m *Metrics) RecordSampleIngested() {
	if m == nil {
		return
	}
	m.samplesIngested.Inc()
}

// RecordSampleRejected increments the rejected-sample counter.
func (m *Metrics) RecordSampleRejected(reason string) {
	if m == nil {
		return
	}
	m.samplesRejected.WithLabelValues(reason).Inc()
}

// RecordOutOfOrder increments the out-of-order flag counter.
func (m *Metrics) RecordOutOfOrder() {
	if m == nil {
		return
	}
	m.samplesOutOfOrder.Inc()
}

// RecordSideEffectError increments the side-effect failure counter.
func (m *Metrics) RecordSideEffectError(effect string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(effect).Inc()
}

// RecordSubscribe increments the live subscriber gauge.
func (m *Metrics) RecordSubscribe() {
	if m == nil {
		return
	}
	m.streamSubscribers.Inc()
}

// RecordUnsubscribe decrements the live subscriber gauge.
func (m *Metrics) RecordUnsubscribe() {
	if m == nil {
		return
	}
	m.streamSubscribers.Dec()
}

// RecordFanoutDelivered increments the delivered-frame counter.
func (m *Metrics) RecordFanoutDelivered(msgType string) {
	if m == nil {
		return
	}
	m.fanoutDelivered.WithLabelValues(msgType).Inc()
}

// RecordFanoutDropped increments the dropped-frame counter.
func (m *Metrics) RecordFanoutDropped(msgType string) {
	if m == nil {
		return
	}
	m.fanoutDropped.WithLabelValues(msgType).Inc()
}

// ObserveFanoutDuration records the duration of one fan-out pass.
func (m *Metrics) ObserveFanoutDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.fanoutDuration.Observe(d.Seconds())
}
