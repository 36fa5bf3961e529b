// Package router implements longest-prefix-match forwarding between a set
// of netif.NetworkInterfaces.
package router

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyrange/minnow/internal/netif"
	"github.com/tinyrange/minnow/internal/wire"
)

// Route is one entry in the routing table. NextHop is nil when the network
// is directly attached: the datagram's own destination is used as the
// next hop in that case.
type Route struct {
	Prefix       [4]byte
	PrefixLength uint8
	NextHop      *[4]byte
	Interface    int
}

// String renders the route in CIDR-ish debug form.
func (r Route) String() string {
	hop := "(direct)"
	if r.NextHop != nil {
		hop = ipString(*r.NextHop)
	}
	return fmt.Sprintf("%s/%d => %s if%d", ipString(r.Prefix), r.PrefixLength, hop, r.Interface)
}

func ipString(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// Router forwards IPv4 datagrams received on any of its interfaces to the
// interface selected by the longest matching route, decrementing TTL and
// recomputing the header checksum along the way.
type Router struct {
	interfaces []*netif.NetworkInterface
	table      []Route
	log        *slog.Logger
	metrics    *metrics
}

// New returns an empty Router.
func New(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, metrics: newMetrics()}
}

// Metrics returns the Router's Prometheus collectors for registration.
func (r *Router) Metrics() []prometheus.Collector {
	return r.metrics.Collectors()
}

// AddInterface registers an interface and returns its index, used to refer
// to it in AddRoute.
func (r *Router) AddInterface(n *netif.NetworkInterface) int {
	r.interfaces = append(r.interfaces, n)
	return len(r.interfaces) - 1
}

// Interface returns the interface at the given index.
func (r *Router) Interface(idx int) *netif.NetworkInterface {
	return r.interfaces[idx]
}

// Interfaces returns every registered interface, in registration order.
func (r *Router) Interfaces() []*netif.NetworkInterface {
	return r.interfaces
}

// AddRoute appends a route to the table. Ties in prefix length are broken
// in favor of whichever route was added first.
func (r *Router) AddRoute(prefix [4]byte, prefixLength uint8, nextHop *[4]byte, iface int) {
	r.table = append(r.table, Route{Prefix: prefix, PrefixLength: prefixLength, NextHop: nextHop, Interface: iface})
}

func prefixMask(prefixLength uint8) uint32 {
	if prefixLength == 0 {
		return 0
	}
	return 0xFFFFFFFF << (32 - prefixLength)
}

func toUint32(ip [4]byte) uint32 {
	return binary.BigEndian.Uint32(ip[:])
}

// Route drains every interface's received-datagram queue and forwards each
// one according to the longest matching route, dropping anything with an
// expired TTL or no match.
func (r *Router) Route() {
	for _, in := range r.interfaces {
		for _, dgram := range in.PopReceivedDatagrams() {
			r.RouteDatagram(dgram)
		}
	}
}

// RouteDatagram forwards a single datagram according to the longest
// matching route, whether it arrived on an interface or was generated
// locally by this stack's own TCP layer.
func (r *Router) RouteDatagram(dgram wire.IPv4Datagram) {
	if dgram.TTL <= 1 {
		r.log.Debug("dropping datagram with expired ttl", "dst", ipString(dgram.Dst))
		r.metrics.droppedTTL.Inc()
		return
	}
	dgram.TTL--

	dst := toUint32(dgram.Dst)
	var best *Route
	for i := range r.table {
		entry := &r.table[i]
		mask := prefixMask(entry.PrefixLength)
		if dst&mask != toUint32(entry.Prefix)&mask {
			continue
		}
		if best == nil || best.PrefixLength < entry.PrefixLength {
			best = entry
		}
	}
	if best == nil {
		r.log.Debug("no matching route", "dst", ipString(dgram.Dst))
		r.metrics.droppedNoRoute.Inc()
		return
	}

	nextHop := dgram.Dst
	if best.NextHop != nil {
		nextHop = *best.NextHop
	}
	r.interfaces[best.Interface].SendDatagram(dgram, nextHop)
	r.metrics.routed.Inc()
}
