package ergodic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports ledger, sensor, warning and protocol activity to
// Prometheus. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pathEvents         prometheus.Counter
	warnings           *prometheus.CounterVec
	sensorFailures     *prometheus.CounterVec
	protocolExecutions *prometheus.CounterVec
	flexibility        prometheus.Gauge
	sensorDistance     *prometheus.GaugeVec
	monitoringSkipped  prometheus.Counter
}

// NewMetrics registers the ergodic collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pathEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ergodic",
			Subsystem: "path",
			Name:      "events_total",
			Help:      "Decisions appended to the path-dependency ledger",
		}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ergodic",
			Subsystem: "monitoring",
			Name:      "warnings_total",
			Help:      "Barrier warnings raised by severity",
		}, []string{"severity", "barrier"}),
		sensorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ergodic",
			Subsystem: "sensor",
			Name:      "failures_total",
			Help:      "Sensor measurement failures by sensor and fallback outcome",
		}, []string{"sensor", "fallback"}),
		protocolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ergodic",
			Subsystem: "protocol",
			Name:      "executions_total",
			Help:      "Escape protocol executions by protocol and outcome",
		}, []string{"protocol", "outcome"}),
		flexibility: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ergodic",
			Subsystem: "path",
			Name:      "flexibility_score",
			Help:      "Most recent flexibility score",
		}),
		sensorDistance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ergodic",
			Subsystem: "sensor",
			Name:      "distance",
			Help:      "Most recent distance to barrier per sensor",
		}, []string{"sensor"}),
		monitoringSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ergodic",
			Subsystem: "monitoring",
			Name:      "skipped_total",
			Help:      "Monitoring ticks skipped after exceeding their deadline",
		}),
	}
}

func (m *Metrics) observeEvent(metrics FlexibilityMetrics) {
	if m == nil {
		return
	}
	m.pathEvents.Inc()
	m.flexibility.Set(metrics.FlexibilityScore)
}

func (m *Metrics) observeReading(r SensorReading) {
	if m == nil {
		return
	}
	m.sensorDistance.WithLabelValues(string(r.SensorType)).Set(r.Distance)
}

func (m *Metrics) observeFailure(sensor SensorType, fallback string) {
	if m == nil {
		return
	}
	m.sensorFailures.WithLabelValues(string(sensor), fallback).Inc()
}

func (m *Metrics) observeWarning(w BarrierWarning) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(string(w.Severity), string(w.Barrier.Subtype)).Inc()
}

func (m *Metrics) observeExecution(resp EscapeResponse) {
	if m == nil {
		return
	}
	m.protocolExecutions.WithLabelValues(resp.Protocol.ID, resp.Outcome()).Inc()
}

func (m *Metrics) observeSkip() {
	if m == nil {
		return
	}
	m.monitoringSkipped.Inc()
}
