// Package tcp implements the sender and receiver halves of a TCP
// connection's segment-level logic: turning a ByteStream into segments with
// sequence numbers, tracking outstanding data and retransmission timing, and
// reassembling received segments back into a ByteStream via a Reassembler.
// Nothing in this package touches a clock or a socket; Tick is driven by a
// caller, and segments are exchanged through plain Go values.
package tcp

import "github.com/tinyrange/minnow/internal/seqnum"

// MaxPayloadSize bounds how many payload bytes a single outgoing segment
// carries, independent of the receiver's advertised window.
const MaxPayloadSize = 1000

// ZeroWindowProbeSize is how many sequence numbers a Sender will push when
// the peer has advertised a zero window, to provoke a fresh ACK.
const ZeroWindowProbeSize = 1

// MaxWindowSize is the largest window a Receiver will ever advertise,
// fixed by the 16-bit window field in a TCP header.
const MaxWindowSize = 65535

// TransmitFunc is how a Sender hands a finished segment to its caller.
type TransmitFunc func(SenderMessage)

// SenderMessage is one segment emitted by a Sender.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength is how many sequence numbers this segment occupies: one for
// SYN, one for FIN, plus the payload length.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is one acknowledgment/window-advertisement emitted by a
// Receiver. Ackno is nil until a SYN has been seen.
type ReceiverMessage struct {
	Ackno      *seqnum.Wrap32
	WindowSize uint16
	RST        bool
}
