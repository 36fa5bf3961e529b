// Package netstack wires the link (netif), network (router), and transport
// (tcp) layers together into a single addressable stack: DialTCP and
// ListenTCP give callers net.Conn-shaped TCP endpoints, backed by the pure-Go
// sender/receiver/reassembler state machines in internal/tcp.
//
// The stack's core loop is single-threaded at heart: DeliverFrame and Tick
// do all their work under one mutex. The mutex exists only because Conn
// and Listener callers run on their own goroutines and need to hand data
// across to whatever goroutine is pumping DeliverFrame/Tick; the seven
// lower-level packages this one composes never take a lock themselves.
package netstack

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyrange/minnow/internal/netif"
	"github.com/tinyrange/minnow/internal/pcap"
	"github.com/tinyrange/minnow/internal/router"
	"github.com/tinyrange/minnow/internal/wire"
)

// InitialRTO is the default retransmission timeout handed to every new
// tcp.Sender, before any backoff.
const InitialRTO = 1000

// StreamCapacity is the default size of the ByteStream backing each side
// of a connection's reassembler and outbound buffer.
const StreamCapacity = 64 * 1024

// fourTuple identifies one TCP connection.
type fourTuple struct {
	localIP    [4]byte
	localPort  uint16
	remoteIP   [4]byte
	remotePort uint16
}

type listenKey struct {
	ip   [4]byte
	port uint16
}

// Config configures a Stack. There is no config-file format: callers build
// this directly, the way small in-process components in this codebase take
// an explicit options struct rather than parsing a config file.
type Config struct {
	Log *slog.Logger
	// PCAPWriter, if set, receives a copy of every frame sent or received
	// on any interface, for offline inspection.
	PCAPWriter *pcap.Writer
}

// Stack is the orchestrator tying interfaces, routing, and TCP connection
// state together.
type Stack struct {
	log    *slog.Logger
	pcapW  *pcap.Writer
	router *router.Router

	// OnTransmit, if set, is called with every frame an interface sends.
	// Tests and demo binaries use this to bridge frames to a peer stack
	// (real or simulated) instead of a physical NIC.
	OnTransmit func(ifaceIdx int, frame []byte)

	metrics *metrics

	mu          sync.Mutex
	endpoints   map[fourTuple]*endpoint
	listeners   map[listenKey]*Listener
	nextEphPort uint16
}

// New returns an empty Stack.
func New(cfg Config) *Stack {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Stack{
		log:         log,
		pcapW:       cfg.PCAPWriter,
		metrics:     newStackMetrics(),
		endpoints:   make(map[fourTuple]*endpoint),
		listeners:   make(map[listenKey]*Listener),
		nextEphPort: 49152,
	}
	s.router = router.New(log)
	return s
}

// Metrics returns every Prometheus collector owned by the stack and its
// router and interfaces, for one-shot registration with a Registerer.
func (s *Stack) Metrics() []prometheus.Collector {
	collectors := s.metrics.Collectors()
	collectors = append(collectors, s.router.Metrics()...)
	for _, in := range s.router.Interfaces() {
		collectors = append(collectors, in.Metrics()...)
	}
	return collectors
}

// AddInterface registers a network interface with the stack's router and
// returns its index.
func (s *Stack) AddInterface(name string, mac wire.MACAddr, ip [4]byte) int {
	idx := len(s.router.Interfaces())
	capturedIdx := idx
	n := netif.New(name, mac, ip, func(frame []byte) {
		s.writePCAP(frame)
		if s.OnTransmit != nil {
			s.OnTransmit(capturedIdx, frame)
		}
	}, s.log)
	return s.router.AddInterface(n)
}

// Interface returns the interface at the given index.
func (s *Stack) Interface(idx int) *netif.NetworkInterface {
	return s.router.Interface(idx)
}

// AddRoute adds a forwarding table entry. See router.Router.AddRoute.
func (s *Stack) AddRoute(prefix [4]byte, prefixLength uint8, nextHop *[4]byte, iface int) {
	s.router.AddRoute(prefix, prefixLength, nextHop, iface)
}

func (s *Stack) writePCAP(frame []byte) {
	if s.pcapW == nil {
		return
	}
	if err := s.pcapW.WriteFrame(frame, time.Now()); err != nil {
		s.log.Warn("pcap write failed", "error", err)
	}
}

// DeliverFrame hands a raw Ethernet frame, arriving on the given interface,
// to the stack: ARP learning, IPv4 routing, and TCP segment demux all
// happen synchronously within this call.
func (s *Stack) DeliverFrame(ifaceIdx int, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ifaces := s.router.Interfaces()
	if ifaceIdx < 0 || ifaceIdx >= len(ifaces) {
		return fmt.Errorf("netstack: interface index %d out of range", ifaceIdx)
	}
	s.writePCAP(frame)

	in := ifaces[ifaceIdx]
	in.RecvFrame(frame)

	for _, dgram := range in.PopReceivedDatagrams() {
		if s.isLocalAddress(dgram.Dst) {
			s.handleIPv4Locally(dgram)
		} else {
			s.router.RouteDatagram(dgram)
		}
	}
	return nil
}

func (s *Stack) isLocalAddress(ip [4]byte) bool {
	for _, in := range s.router.Interfaces() {
		if in.IP() == ip {
			return true
		}
	}
	return false
}

func (s *Stack) handleIPv4Locally(dgram wire.IPv4Datagram) {
	if dgram.Protocol != wire.ProtocolTCP {
		return
	}
	seg, ok := wire.ParseTCP(dgram.Payload)
	if !ok {
		return
	}
	s.handleTCPSegment(dgram.Src, dgram.Dst, seg)
}

// handleTCPSegment dispatches an inbound segment to its existing
// connection, or to a listener if the segment opens a new one. Called with
// s.mu already held.
func (s *Stack) handleTCPSegment(srcIP, dstIP [4]byte, seg wire.TCPSegment) {
	tuple := fourTuple{localIP: dstIP, localPort: seg.DstPort, remoteIP: srcIP, remotePort: seg.SrcPort}
	if ep, ok := s.endpoints[tuple]; ok {
		ep.receiveSegment(seg)
		return
	}

	if seg.Flags&wire.TCPFlagSYN == 0 {
		return // no listener will accept a non-SYN segment for an unknown connection
	}
	key := listenKey{ip: dstIP, port: seg.DstPort}
	lst, ok := s.listeners[key]
	if !ok {
		key.ip = [4]byte{}
		lst, ok = s.listeners[key]
	}
	if !ok {
		return
	}

	ep := s.newEndpoint(tuple)
	ep.state = stateSynReceived
	s.endpoints[tuple] = ep
	s.metrics.activeConnections.Inc()
	ep.receiveSegment(seg)

	lst.pending = append(lst.pending, ep)
	lst.cond.Broadcast()
}

// Tick advances every interface's and every connection's clocks by
// msSinceLastTick milliseconds, retransmitting and expiring ARP state as
// needed.
func (s *Stack) Tick(msSinceLastTick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range s.router.Interfaces() {
		in.Tick(msSinceLastTick)
	}
	for tuple, ep := range s.endpoints {
		if ep.tick(msSinceLastTick) {
			delete(s.endpoints, tuple)
			s.metrics.activeConnections.Dec()
		}
	}
}
