package router

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks per-Router forwarding outcomes, grounded in the same
// Describe/Collect-free counter pattern internal/netif uses.
type metrics struct {
	routed         prometheus.Counter
	droppedTTL     prometheus.Counter
	droppedNoRoute prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		routed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minnow",
			Subsystem: "router",
			Name:      "datagrams_routed_total",
			Help:      "IPv4 datagrams successfully forwarded.",
		}),
		droppedTTL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minnow",
			Subsystem: "router",
			Name:      "datagrams_dropped_ttl_total",
			Help:      "IPv4 datagrams dropped for an expired TTL.",
		}),
		droppedNoRoute: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minnow",
			Subsystem: "router",
			Name:      "datagrams_dropped_no_route_total",
			Help:      "IPv4 datagrams dropped for lacking a matching route.",
		}),
	}
}

// Collectors returns the Router's metrics for registration with a
// prometheus.Registerer.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.routed, m.droppedTTL, m.droppedNoRoute}
}
