package netif

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus instruments for one NetworkInterface. They
// are created per-interface (labeled by name) rather than as package-level
// globals so that multiple interfaces in the same process don't collide.
type metrics struct {
	framesSent      prometheus.Counter
	framesReceived  prometheus.Counter
	framesDropped   prometheus.Counter
	arpRequestsSent prometheus.Counter
	arpCacheSize    prometheus.Gauge
}

func newMetrics(name string) *metrics {
	labels := prometheus.Labels{"interface": name}
	return &metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "minnow_netif_frames_sent_total",
			Help:        "Ethernet frames transmitted by this interface.",
			ConstLabels: labels,
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "minnow_netif_frames_received_total",
			Help:        "Ethernet frames accepted by this interface (not filtered at L2).",
			ConstLabels: labels,
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "minnow_netif_frames_dropped_total",
			Help:        "Ethernet frames dropped at L2 because dst was neither broadcast nor ours.",
			ConstLabels: labels,
		}),
		arpRequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "minnow_netif_arp_requests_sent_total",
			Help:        "ARP requests transmitted by this interface.",
			ConstLabels: labels,
		}),
		arpCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "minnow_netif_arp_cache_size",
			Help:        "Current number of entries in this interface's ARP cache.",
			ConstLabels: labels,
		}),
	}
}

// Collectors returns every metric so a caller can register them with a
// prometheus.Registerer of their choosing.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesSent, m.framesReceived, m.framesDropped, m.arpRequestsSent, m.arpCacheSize,
	}
}
