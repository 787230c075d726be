package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connMetrics метрики реестра. nil значение допустимо и ничего не считает.
type connMetrics struct {
	connectionsCreated  prometheus.Counter
	connectionsReplaced prometheus.Counter
	listeners           prometheus.Gauge
}

func newConnMetrics(reg prometheus.Registerer) *connMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &connMetrics{
		connectionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webphone",
			Subsystem: "registry",
			Name:      "connections_created_total",
			Help:      "Total number of transports created by the registry",
		}),
		connectionsReplaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "webphone",
			Subsystem: "registry",
			Name:      "connections_replaced_total",
			Help:      "Total number of transports replaced because of a config change",
		}),
		listeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "webphone",
			Subsystem: "registry",
			Name:      "connection_listeners",
			Help:      "Number of listeners attached to the live connection",
		}),
	}
}

func (m *connMetrics) created() {
	if m != nil {
		m.connectionsCreated.Inc()
	}
}

func (m *connMetrics) replaced() {
	if m != nil {
		m.connectionsReplaced.Inc()
	}
}

func (m *connMetrics) listenerAdded() {
	if m != nil {
		m.listeners.Inc()
	}
}

func (m *connMetrics) listenerRemoved() {
	if m != nil {
		m.listeners.Dec()
	}
}

func (m *connMetrics) listenersDropped(n int) {
	if m != nil && n > 0 {
		m.listeners.Sub(float64(n))
	}
}
