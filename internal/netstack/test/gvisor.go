// Package test interop-tests netstack.Stack against gVisor's independent
// TCP/IP implementation, proving the handshake/data/close sequencing this
// repo implements against a real stack rather than only against its own
// receiver.
package test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/tinyrange/minnow/internal/netstack"
	"github.com/tinyrange/minnow/internal/wire"

	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
)

const gvisorNICID tcpip.NICID = 1

var (
	hostIPv4  = [4]byte{10, 42, 0, 1}
	guestIPv4 = net.IPv4(10, 42, 0, 2)
)

// gvisorHarness bridges one netstack.Stack interface to a gVisor stack.Stack
// over an in-memory Ethernet channel, the way a real NIC driver would sit
// between the two.
type gvisorHarness struct {
	t testing.TB

	ctx    context.Context
	cancel context.CancelFunc

	host    *netstack.Stack
	hostIP  [4]byte
	guestMA net.HardwareAddr
	gs      *stack.Stack
	ch      *channel.Endpoint
}

func mustAddrFrom4(ip net.IP) tcpip.Address {
	ip4 := ip.To4()
	if ip4 == nil || len(ip4) != 4 {
		panic("expected IPv4")
	}
	var b [4]byte
	copy(b[:], ip4)
	return tcpip.AddrFrom4(b)
}

func newGvisorHarness(tb testing.TB) *gvisorHarness {
	tb.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := &gvisorHarness{
		t:       tb,
		ctx:     ctx,
		cancel:  cancel,
		hostIP:  hostIPv4,
		guestMA: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	h.host = netstack.New(netstack.Config{Log: logger})
	var hostMAC wire.MACAddr
	hostMAC[5] = 0x01
	idx := h.host.AddInterface("eth0", hostMAC, h.hostIP)
	h.host.AddRoute([4]byte{10, 42, 0, 0}, 24, nil, idx)

	// channel.Endpoint.MTU is the L2 MTU; ethernet.Endpoint subtracts its own
	// header length to derive the L3 MTU, so ask for 1500 L3 bytes of room.
	h.ch = channel.New(4096, 1500+header.EthernetMinimumSize, tcpip.LinkAddress(string(h.guestMA)))
	ep := ethernet.New(h.ch)
	h.gs = stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})
	if err := h.gs.CreateNIC(gvisorNICID, ep); err != nil {
		tb.Fatalf("gvisor CreateNIC: %v", err)
	}
	if err := h.gs.AddProtocolAddress(
		gvisorNICID,
		tcpip.ProtocolAddress{
			Protocol: ipv4.ProtocolNumber,
			AddressWithPrefix: tcpip.AddressWithPrefix{
				Address:   mustAddrFrom4(guestIPv4),
				PrefixLen: 24,
			},
		},
		stack.AddressProperties{},
	); err != nil {
		tb.Fatalf("gvisor AddProtocolAddress: %v", err)
	}
	h.gs.SetRouteTable([]tcpip.Route{
		{Destination: header.IPv4EmptySubnet, NIC: gvisorNICID},
	})

	h.host.OnTransmit = func(ifaceIdx int, frame []byte) {
		out := append([]byte(nil), frame...)
		pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
			Payload: buffer.MakeWithData(out),
		})
		h.ch.InjectInbound(0, pkt)
	}

	go func() {
		for {
			pkt := h.ch.ReadContext(h.ctx)
			if pkt == nil {
				return
			}
			out := append([]byte(nil), pkt.ToView().AsSlice()...)
			pkt.DecRef()
			_ = h.host.DeliverFrame(0, out)
		}
	}()

	tb.Cleanup(func() {
		h.cancel()
		h.ch.Close()
	})
	return h
}

func gvisorDialTCP(tb testing.TB, gs *stack.Stack, dstIP [4]byte, dstPort uint16) net.Conn {
	tb.Helper()
	c, err := gonet.DialTCP(gs, tcpip.FullAddress{
		NIC:  gvisorNICID,
		Addr: mustAddrFrom4(net.IPv4(dstIP[0], dstIP[1], dstIP[2], dstIP[3])),
		Port: dstPort,
	}, ipv4.ProtocolNumber)
	if err != nil {
		tb.Fatalf("gvisor dial tcp: %v", err)
	}
	tb.Cleanup(func() { _ = c.Close() })
	return c
}

func gvisorListenTCP(tb testing.TB, gs *stack.Stack, port uint16) net.Listener {
	tb.Helper()
	l, err := gonet.ListenTCP(gs, tcpip.FullAddress{
		NIC:  gvisorNICID,
		Addr: mustAddrFrom4(guestIPv4),
		Port: port,
	}, ipv4.ProtocolNumber)
	if err != nil {
		tb.Fatalf("gvisor listen tcp: %v", err)
	}
	tb.Cleanup(func() { _ = l.Close() })
	return l
}

func readAllWithTimeout(tb testing.TB, r io.Reader, timeout time.Duration) []byte {
	tb.Helper()
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(r)
		done <- result{data, err}
	}()
	select {
	case res := <-done:
		if res.err != nil && res.err != io.EOF {
			tb.Fatalf("read: %v", res.err)
		}
		return res.data
	case <-time.After(timeout):
		tb.Fatalf("timed out reading")
		return nil
	}
}
