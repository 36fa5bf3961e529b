// Package netif implements the link layer: an Ethernet-framed interface
// that resolves next-hop IP addresses to MAC addresses via ARP, queuing
// outbound datagrams while a resolution is pending.
package netif

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyrange/minnow/internal/wire"
)

// ARPCacheTTL is how long a learned IP-to-MAC mapping stays valid.
const ARPCacheTTL = 30000

// ARPRequestCooldown is the minimum gap between ARP requests for the same
// unresolved next hop, and also the deadline by which a reply must arrive
// before the interface gives up and drops anything still queued for it.
const ARPRequestCooldown = 5000

var ethernetFramePool = sync.Pool{
	New: func() any { return make([]byte, 0, 1500) },
}

type arpCacheEntry struct {
	mac          wire.MACAddr
	remainingTTL uint64
}

// NetworkInterface sits between a router (or host stack) and a physical or
// virtual Ethernet segment. It owns one Ethernet and one IP address, and
// transmit is a caller-supplied callback rather than a socket, so the same
// type drives both host-loopback tests and real packet I/O.
type NetworkInterface struct {
	name     string
	mac      wire.MACAddr
	ip       [4]byte
	transmit func(frame []byte)
	log      *slog.Logger
	metrics  *metrics

	arpCache          map[[4]byte]arpCacheEntry
	arpWaitingRemain  map[[4]byte]uint64
	arpWaitingQueue   map[[4]byte][]wire.IPv4Datagram
	datagramsReceived []wire.IPv4Datagram
}

// New returns a NetworkInterface. transmit is called synchronously with a
// complete Ethernet frame whenever the interface needs to put one on the
// wire; it must not block indefinitely.
func New(name string, mac wire.MACAddr, ip [4]byte, transmit func(frame []byte), log *slog.Logger) *NetworkInterface {
	if log == nil {
		log = slog.Default()
	}
	return &NetworkInterface{
		name:             name,
		mac:              mac,
		ip:               ip,
		transmit:         transmit,
		log:              log.With("interface", name),
		metrics:          newMetrics(name),
		arpCache:         make(map[[4]byte]arpCacheEntry),
		arpWaitingRemain: make(map[[4]byte]uint64),
		arpWaitingQueue:  make(map[[4]byte][]wire.IPv4Datagram),
	}
}

// Name returns the interface's configured name.
func (n *NetworkInterface) Name() string { return n.name }

// MAC returns the interface's Ethernet address.
func (n *NetworkInterface) MAC() wire.MACAddr { return n.mac }

// IP returns the interface's IPv4 address.
func (n *NetworkInterface) IP() [4]byte { return n.ip }

// Metrics returns the interface's Prometheus collectors for registration.
func (n *NetworkInterface) Metrics() []prometheus.Collector { return n.metrics.Collectors() }

// SendDatagram transmits dgram to nextHop, resolving its MAC address via
// ARP first if necessary. If resolution is still pending, the datagram is
// queued and sent once (or if) the reply arrives.
func (n *NetworkInterface) SendDatagram(dgram wire.IPv4Datagram, nextHop [4]byte) {
	if entry, ok := n.arpCache[nextHop]; ok {
		n.sendIPv4Frame(entry.mac, dgram)
		return
	}

	n.arpWaitingQueue[nextHop] = append(n.arpWaitingQueue[nextHop], dgram)
	if _, pending := n.arpWaitingRemain[nextHop]; !pending {
		n.sendARPRequest(nextHop)
		n.arpWaitingRemain[nextHop] = ARPRequestCooldown
	}
}

func (n *NetworkInterface) sendIPv4Frame(dst wire.MACAddr, dgram wire.IPv4Datagram) {
	n.transmitPooled(dst, wire.EtherTypeIPv4, dgram.Serialize())
}

func (n *NetworkInterface) sendARPRequest(targetIP [4]byte) {
	msg := wire.ARPMessage{
		Opcode:    wire.ARPOpRequest,
		SenderMAC: n.mac,
		SenderIP:  n.ip,
		TargetIP:  targetIP,
	}
	n.transmitPooled(wire.BroadcastMAC, wire.EtherTypeARP, msg.Serialize())
	n.metrics.arpRequestsSent.Inc()
}

// transmitPooled assembles an Ethernet frame in a buffer drawn from
// ethernetFramePool and hands it to the transmit callback, returning the
// buffer to the pool once the callback returns. transmit must not retain
// the slice past its call.
func (n *NetworkInterface) transmitPooled(dst wire.MACAddr, etherType wire.EtherType, payload []byte) {
	total := wire.EthernetHeaderLen + len(payload)
	buf := ethernetFramePool.Get().([]byte)
	if cap(buf) < total {
		buf = make([]byte, total)
	} else {
		buf = buf[:total]
	}
	copy(buf[0:6], dst[:])
	copy(buf[6:12], n.mac[:])
	buf[12] = byte(etherType >> 8)
	buf[13] = byte(etherType)
	copy(buf[14:], payload)

	n.metrics.framesSent.Inc()
	n.transmit(buf)

	ethernetFramePool.Put(buf[:0]) //nolint:staticcheck // returned after synchronous use only
}

// RecvFrame processes one incoming Ethernet frame, filtering anything not
// addressed to us or to the broadcast address.
func (n *NetworkInterface) RecvFrame(data []byte) {
	frame, ok := wire.ParseEthernet(data)
	if !ok {
		return
	}
	if frame.Dst != wire.BroadcastMAC && frame.Dst != n.mac {
		n.metrics.framesDropped.Inc()
		return
	}
	n.metrics.framesReceived.Inc()

	switch frame.EtherType {
	case wire.EtherTypeARP:
		n.handleARP(frame.Payload)
	case wire.EtherTypeIPv4:
		if dgram, ok := wire.ParseIPv4(frame.Payload); ok {
			n.datagramsReceived = append(n.datagramsReceived, dgram)
		}
	}
}

func (n *NetworkInterface) handleARP(payload []byte) {
	msg, ok := wire.ParseARP(payload)
	if !ok {
		return
	}

	// Learn the sender's mapping regardless of whether this is a request
	// or a reply addressed to us.
	n.arpCache[msg.SenderIP] = arpCacheEntry{mac: msg.SenderMAC, remainingTTL: ARPCacheTTL}
	n.metrics.arpCacheSize.Set(float64(len(n.arpCache)))

	if queued, ok := n.arpWaitingQueue[msg.SenderIP]; ok {
		delete(n.arpWaitingQueue, msg.SenderIP)
		delete(n.arpWaitingRemain, msg.SenderIP)
		for _, dgram := range queued {
			n.SendDatagram(dgram, msg.SenderIP)
		}
	}

	if msg.Opcode == wire.ARPOpRequest && msg.TargetIP == n.ip {
		reply := wire.ARPMessage{
			Opcode:    wire.ARPOpReply,
			SenderMAC: n.mac,
			SenderIP:  n.ip,
			TargetMAC: msg.SenderMAC,
			TargetIP:  msg.SenderIP,
		}
		n.transmitPooled(msg.SenderMAC, wire.EtherTypeARP, reply.Serialize())
	}
}

// PopReceivedDatagrams drains and returns every IPv4 datagram accepted
// since the last call.
func (n *NetworkInterface) PopReceivedDatagrams() []wire.IPv4Datagram {
	out := n.datagramsReceived
	n.datagramsReceived = nil
	return out
}

// Tick ages out ARP cache entries and abandons unresolved ARP requests
// whose cooldown has expired, dropping anything still queued for them.
func (n *NetworkInterface) Tick(msSinceLastTick uint64) {
	for ip, entry := range n.arpCache {
		if msSinceLastTick >= entry.remainingTTL {
			delete(n.arpCache, ip)
			continue
		}
		entry.remainingTTL -= msSinceLastTick
		n.arpCache[ip] = entry
	}
	n.metrics.arpCacheSize.Set(float64(len(n.arpCache)))

	for ip, remaining := range n.arpWaitingRemain {
		if msSinceLastTick >= remaining {
			delete(n.arpWaitingRemain, ip)
			delete(n.arpWaitingQueue, ip)
			n.log.Debug("arp request timed out, dropping queued datagrams", "ip", ip)
			continue
		}
		n.arpWaitingRemain[ip] = remaining - msSinceLastTick
	}
}
