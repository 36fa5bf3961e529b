package netstack

import (
	"sync"

	"github.com/tinyrange/minnow/internal/seqnum"
	"github.com/tinyrange/minnow/internal/stream"
	"github.com/tinyrange/minnow/internal/tcp"
	"github.com/tinyrange/minnow/internal/wire"
)

type connState int

const (
	stateSynSent connState = iota
	stateSynReceived
	stateEstablished
	stateClosed
)

// endpoint holds one TCP connection's sender/receiver pair and the wiring
// needed to turn their messages into wire segments and back. All of its
// methods are called with the owning Stack's mutex held.
type endpoint struct {
	stack *Stack
	tuple fourTuple

	sender   *tcp.Sender
	receiver *tcp.Receiver
	state    connState

	cond *sync.Cond // signaled on any state change a blocked Read/Write might care about
}

func newISN() seqnum.Wrap32 {
	// A fixed ISN keeps the stack's behavior deterministic and testable;
	// production TCP stacks randomize this to guard against off-path
	// spoofing, which is out of scope here.
	return seqnum.Wrap32FromRaw(0)
}

func (s *Stack) newEndpoint(tuple fourTuple) *endpoint {
	ep := &endpoint{
		stack:    s,
		tuple:    tuple,
		sender:   tcp.NewSender(stream.New(StreamCapacity), newISN(), InitialRTO),
		receiver: tcp.NewReceiver(StreamCapacity),
	}
	ep.cond = sync.NewCond(&s.mu)
	return ep
}

// receiveSegment feeds one incoming wire segment through the receiver and
// sender, then gives the sender a chance to emit anything the new
// ack/window unblocked.
func (ep *endpoint) receiveSegment(seg wire.TCPSegment) {
	msg := tcp.SenderMessage{
		Seqno:   seqnum.Wrap32FromRaw(seg.Seqno),
		SYN:     seg.Flags&wire.TCPFlagSYN != 0,
		FIN:     seg.Flags&wire.TCPFlagFIN != 0,
		RST:     seg.Flags&wire.TCPFlagRST != 0,
		Payload: seg.Payload,
	}
	ep.receiver.Receive(msg)

	var recvMsg tcp.ReceiverMessage
	recvMsg.WindowSize = seg.Window
	if seg.Flags&wire.TCPFlagACK != 0 {
		ackno := seqnum.Wrap32FromRaw(seg.Ackno)
		recvMsg.Ackno = &ackno
	}
	ep.sender.Receive(recvMsg)

	if ep.state == stateSynSent && msg.SYN {
		ep.state = stateEstablished
	}
	if ep.state == stateSynReceived {
		ep.state = stateEstablished
	}

	inFlight := ep.sender.SequenceNumbersInFlight()
	ep.pump()
	if msg.SequenceLength() > 0 && ep.sender.SequenceNumbersInFlight() == inFlight {
		ep.sendAck()
	}
	ep.cond.Broadcast()
}

// pump lets the sender emit as many segments as its window currently
// allows, piggybacking the receiver's current ack/window on each one, and
// routes them out through the stack.
func (ep *endpoint) pump() {
	ep.sender.Push(func(msg tcp.SenderMessage) {
		ep.sendCombined(msg)
	})
}

// sendAck emits a bare acknowledgment outside of the sender's normal
// flow-controlled Push, used after processing new inbound data so the peer
// learns about the freed window promptly instead of waiting for its own
// timer.
func (ep *endpoint) sendAck() {
	ep.sendCombined(ep.sender.MakeEmptyMessage())
}

func (ep *endpoint) sendCombined(msg tcp.SenderMessage) {
	recvMsg := ep.receiver.Send()

	var flags uint8
	if msg.SYN {
		flags |= wire.TCPFlagSYN
	}
	if msg.FIN {
		flags |= wire.TCPFlagFIN
	}
	if msg.RST {
		flags |= wire.TCPFlagRST
	}
	var ackno uint32
	if recvMsg.Ackno != nil {
		flags |= wire.TCPFlagACK
		ackno = recvMsg.Ackno.Raw()
	}

	seg := wire.TCPSegment{
		SrcPort: ep.tuple.localPort,
		DstPort: ep.tuple.remotePort,
		Seqno:   msg.Seqno.Raw(),
		Ackno:   ackno,
		Flags:   flags,
		Window:  recvMsg.WindowSize,
		Payload: msg.Payload,
	}

	dgram := wire.IPv4Datagram{
		TTL:      64,
		Protocol: wire.ProtocolTCP,
		Src:      ep.tuple.localIP,
		Dst:      ep.tuple.remoteIP,
		Payload:  seg.Serialize(ep.tuple.localIP, ep.tuple.remoteIP),
	}
	ep.stack.router.RouteDatagram(dgram)
}

// tick advances the sender's retransmission timer. It returns true once the
// connection has fully closed and its endpoint entry should be removed.
func (ep *endpoint) tick(msSinceLastTick uint64) bool {
	ep.sender.Tick(msSinceLastTick, func(msg tcp.SenderMessage) {
		ep.sendCombined(msg)
	})
	if ep.state == stateClosed {
		return true
	}
	if ep.sender.Input().IsFinished() && ep.receiver.Output().IsClosed() &&
		ep.sender.SequenceNumbersInFlight() == 0 {
		ep.state = stateClosed
		return true
	}
	return false
}
