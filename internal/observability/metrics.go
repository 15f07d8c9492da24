// Package observability collects Prometheus metrics for the realtime
// service. Metrics register with the default registry and show up on
// the /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// ActiveConnections gauges currently open sockets.
	ActiveConnections prometheus.Gauge

	// EventsReceived counts inbound events by type tag.
	EventsReceived *prometheus.CounterVec

	// PublishFailures counts per-recipient delivery failures during
	// fan-out (backpressure or closed conns).
	PublishFailures prometheus.Counter

	// ActiveCalls gauges running group calls.
	ActiveCalls prometheus.Gauge

	// CallDuration observes finished call lengths in seconds.
	CallDuration prometheus.Histogram

	// MessagesStored counts persisted chat messages by message type.
	MessagesStored *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics. Call it once at
// startup; a nil *Metrics is valid everywhere and records nothing.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agora_ws_active_connections",
			Help: "Currently open WebSocket connections",
		}),
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_ws_events_total",
			Help: "Inbound WebSocket events by type",
		}, []string{"type"}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_ws_publish_failures_total",
			Help: "Recipients that missed a fan-out frame",
		}),
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agora_calls_active",
			Help: "Group calls currently running",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_call_duration_seconds",
			Help:    "Length of finished group calls in seconds",
			Buckets: []float64{5, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		MessagesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_messages_stored_total",
			Help: "Chat messages written to the channel log by type",
		}, []string{"message_type"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) EventReceived(kind string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) PublishFailed(count int) {
	if m == nil || count == 0 {
		return
	}
	m.PublishFailures.Add(float64(count))
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

func (m *Metrics) CallEnded(seconds float64) {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
	m.CallDuration.Observe(seconds)
}

func (m *Metrics) MessageStored(messageType string) {
	if m == nil {
		return
	}
	m.MessagesStored.WithLabelValues(messageType).Inc()
}
