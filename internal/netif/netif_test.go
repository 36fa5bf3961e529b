package netif

import (
	"testing"

	"github.com/tinyrange/minnow/internal/wire"
)

func newTestInterface(name string, mac wire.MACAddr, ip [4]byte) (*NetworkInterface, *[][]byte) {
	var sent [][]byte
	n := New(name, mac, ip, func(frame []byte) {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		sent = append(sent, cp)
	}, nil)
	return n, &sent
}

func TestSendDatagramQueuesBehindARP(t *testing.T) {
	n, sent := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	dgram := wire.IPv4Datagram{TTL: 64, Protocol: wire.ProtocolTCP, Src: n.IP(), Dst: [4]byte{10, 0, 0, 2}}

	n.SendDatagram(dgram, [4]byte{10, 0, 0, 2})
	if len(*sent) != 1 {
		t.Fatalf("expected one ARP request, got %d frames", len(*sent))
	}
	frame, ok := wire.ParseEthernet((*sent)[0])
	if !ok || frame.EtherType != wire.EtherTypeARP || frame.Dst != wire.BroadcastMAC {
		t.Fatalf("expected broadcast ARP request, got %+v", frame)
	}

	// A second send to the same unresolved next hop must not trigger
	// another request within the cooldown window.
	n.SendDatagram(dgram, [4]byte{10, 0, 0, 2})
	if len(*sent) != 1 {
		t.Fatalf("expected arp request throttled, got %d frames", len(*sent))
	}
}

func TestARPReplyFlushesQueuedDatagram(t *testing.T) {
	n, sent := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	peerMAC := wire.MACAddr{2}
	peerIP := [4]byte{10, 0, 0, 2}
	dgram := wire.IPv4Datagram{TTL: 64, Protocol: wire.ProtocolTCP, Src: n.IP(), Dst: peerIP}

	n.SendDatagram(dgram, peerIP)
	*sent = nil

	reply := wire.ARPMessage{Opcode: wire.ARPOpReply, SenderMAC: peerMAC, SenderIP: peerIP, TargetMAC: n.MAC(), TargetIP: n.IP()}
	frame := wire.BuildEthernet(n.MAC(), peerMAC, wire.EtherTypeARP, reply.Serialize())
	n.RecvFrame(frame)

	if len(*sent) != 1 {
		t.Fatalf("expected the queued datagram to flush, got %d frames", len(*sent))
	}
	got, ok := wire.ParseEthernet((*sent)[0])
	if !ok || got.Dst != peerMAC || got.EtherType != wire.EtherTypeIPv4 {
		t.Fatalf("expected unicast ipv4 frame to peer, got %+v", got)
	}
}

func TestARPRequestAnsweredWhenTargetingUs(t *testing.T) {
	n, sent := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	peerMAC := wire.MACAddr{2}
	peerIP := [4]byte{10, 0, 0, 2}

	req := wire.ARPMessage{Opcode: wire.ARPOpRequest, SenderMAC: peerMAC, SenderIP: peerIP, TargetIP: n.IP()}
	frame := wire.BuildEthernet(wire.BroadcastMAC, peerMAC, wire.EtherTypeARP, req.Serialize())
	n.RecvFrame(frame)

	if len(*sent) != 1 {
		t.Fatalf("expected an ARP reply, got %d frames", len(*sent))
	}
	reply, ok := wire.ParseARP(mustPayload(t, (*sent)[0]))
	if !ok || reply.Opcode != wire.ARPOpReply || reply.SenderMAC != n.MAC() || reply.TargetMAC != peerMAC {
		t.Fatalf("unexpected arp reply: %+v", reply)
	}
}

func mustPayload(t *testing.T, frame []byte) []byte {
	t.Helper()
	f, ok := wire.ParseEthernet(frame)
	if !ok {
		t.Fatal("could not parse ethernet frame")
	}
	return f.Payload
}

func TestL2FilterDropsUnaddressedFrames(t *testing.T) {
	n, _ := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	other := wire.MACAddr{9, 9, 9, 9, 9, 9}
	frame := wire.BuildEthernet(other, wire.MACAddr{2}, wire.EtherTypeIPv4, []byte{})
	n.RecvFrame(frame)
	if len(n.PopReceivedDatagrams()) != 0 {
		t.Fatal("frame not addressed to us or broadcast should be dropped")
	}
}

func TestARPCacheTTLExpiry(t *testing.T) {
	n, _ := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	peerMAC := wire.MACAddr{2}
	peerIP := [4]byte{10, 0, 0, 2}
	reply := wire.ARPMessage{Opcode: wire.ARPOpReply, SenderMAC: peerMAC, SenderIP: peerIP, TargetMAC: n.MAC(), TargetIP: n.IP()}
	n.RecvFrame(wire.BuildEthernet(n.MAC(), peerMAC, wire.EtherTypeARP, reply.Serialize()))

	if _, ok := n.arpCache[peerIP]; !ok {
		t.Fatal("expected learned arp entry")
	}
	n.Tick(ARPCacheTTL - 1)
	if _, ok := n.arpCache[peerIP]; !ok {
		t.Fatal("entry should survive until its full TTL elapses")
	}
	n.Tick(1)
	if _, ok := n.arpCache[peerIP]; ok {
		t.Fatal("entry should expire once its TTL has fully elapsed")
	}
}

func TestARPRequestCooldownExpiryDropsQueuedDatagrams(t *testing.T) {
	n, sent := newTestInterface("eth0", wire.MACAddr{1}, [4]byte{10, 0, 0, 1})
	peerIP := [4]byte{10, 0, 0, 2}
	dgram := wire.IPv4Datagram{TTL: 64, Protocol: wire.ProtocolTCP, Src: n.IP(), Dst: peerIP}

	n.SendDatagram(dgram, peerIP)
	n.Tick(ARPRequestCooldown)

	*sent = nil
	// A resolution arriving after the cooldown expired has nothing queued
	// to flush.
	peerMAC := wire.MACAddr{2}
	reply := wire.ARPMessage{Opcode: wire.ARPOpReply, SenderMAC: peerMAC, SenderIP: peerIP, TargetMAC: n.MAC(), TargetIP: n.IP()}
	n.RecvFrame(wire.BuildEthernet(n.MAC(), peerMAC, wire.EtherTypeARP, reply.Serialize()))
	if len(*sent) != 0 {
		t.Fatalf("no datagram should remain queued after cooldown expiry, got %d frames", len(*sent))
	}
}
