// Package metrics exposes Prometheus counters for the subscription transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gqlclient"
	subsystem = "subscriptions"
)

// Metrics holds the transport collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FramesReceived      *prometheus.CounterVec // Frames read by the router, by type
	FramesDropped       prometheus.Counter     // Frames addressed to unknown ids
	Reconnects          prometheus.Counter     // Successful reconnect + resubscribe cycles
	ReconnectFailures   prometheus.Counter     // Reconnection attempts that failed and backed off
	HandlerInvocations  prometheus.Counter     // Handler calls that returned normally
	HandlerPanics       prometheus.Counter     // Panics recovered from handlers
	ActiveSubscriptions prometheus.Gauge       // Entries in the registry
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total frames read from the subscription connection",
		}, []string{"type"}),

		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped because their id is no longer registered",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnects_total",
			Help:      "Total successful reconnections",
		}),

		ReconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconnect_failures_total",
			Help:      "Total failed reconnection attempts",
		}),

		HandlerInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_invocations_total",
			Help:      "Total messages delivered to subscription handlers",
		}),

		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_panics_total",
			Help:      "Total panics recovered from subscription handlers",
		}),

		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_subscriptions",
			Help:      "Current number of registered subscriptions",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.FramesReceived,
		m.FramesDropped,
		m.Reconnects,
		m.ReconnectFailures,
		m.HandlerInvocations,
		m.HandlerPanics,
		m.ActiveSubscriptions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// FrameReceived counts a frame of the given type
func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(frameType).Inc()
}

// FrameDropped counts a frame for an unknown id
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// Reconnected counts a completed reconnection
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// ReconnectFailed counts a reconnection attempt that will be retried
func (m *Metrics) ReconnectFailed() {
	if m == nil {
		return
	}
	m.ReconnectFailures.Inc()
}

// HandlerInvoked counts a delivered message
func (m *Metrics) HandlerInvoked() {
	if m == nil {
		return
	}
	m.HandlerInvocations.Inc()
}

// HandlerPanicked counts a recovered handler panic
func (m *Metrics) HandlerPanicked() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

// SetActive records the registry size
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Set(float64(n))
}
