package netstack

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks Stack-wide connection bookkeeping, the one metric surface
// that belongs to the orchestrator rather than to netif or router.
type metrics struct {
	activeConnections prometheus.Gauge
	activeListeners   prometheus.Gauge
}

func newStackMetrics() *metrics {
	return &metrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minnow",
			Subsystem: "netstack",
			Name:      "active_connections",
			Help:      "Number of TCP connections currently tracked by the stack.",
		}),
		activeListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minnow",
			Subsystem: "netstack",
			Name:      "active_listeners",
			Help:      "Number of TCP listeners currently registered with the stack.",
		}),
	}
}

// Collectors returns the Stack's metrics for registration with a
// prometheus.Registerer.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.activeConnections, m.activeListeners}
}
