package tcp

import (
	"github.com/tinyrange/minnow/internal/seqnum"
	"github.com/tinyrange/minnow/internal/stream"
)

// Sender turns an outbound ByteStream into a sequence of SenderMessages,
// tracking unacknowledged data and retransmitting the oldest outstanding
// segment when a retransmission timer, driven by Tick, expires.
type Sender struct {
	input        *stream.ByteStream
	isn          seqnum.Wrap32
	initialRTOMs uint64

	syn, fin bool

	nextSeqno  uint64
	ackSeqno   uint64
	windowSize uint16

	consecutiveRetransmissions uint64
	currentRTOMs               uint64
	timerMs                    uint64
	timerRunning               bool

	outstanding []SenderMessage
}

// NewSender returns a Sender that reads from input, starting at isn, with
// the given initial retransmission timeout in milliseconds.
func NewSender(input *stream.ByteStream, isn seqnum.Wrap32, initialRTOMs uint64) *Sender {
	return &Sender{
		input:        input,
		isn:          isn,
		initialRTOMs: initialRTOMs,
		windowSize:   1,
	}
}

// Input returns the stream bytes are read from.
func (s *Sender) Input() *stream.ByteStream {
	return s.input
}

// SequenceNumbersInFlight reports how many sequence numbers have been sent
// but not yet acknowledged.
func (s *Sender) SequenceNumbersInFlight() uint64 {
	return s.nextSeqno - s.ackSeqno
}

// ConsecutiveRetransmissions reports how many times in a row the
// retransmission timer has fired without any new data being acknowledged.
func (s *Sender) ConsecutiveRetransmissions() uint64 {
	return s.consecutiveRetransmissions
}

// Push emits as many segments as the receiver's window (or a one-byte
// zero-window probe) currently allows, calling transmit for each one.
func (s *Sender) Push(transmit TransmitFunc) {
	currentWindow := uint64(s.windowSize)
	if currentWindow == 0 {
		currentWindow = ZeroWindowProbeSize
	}

	for currentWindow > s.SequenceNumbersInFlight() {
		if s.fin {
			break
		}

		msg := SenderMessage{
			Seqno: seqnum.Wrap(s.nextSeqno, s.isn),
			RST:   s.input.HasError(),
		}
		if !s.syn {
			s.currentRTOMs = s.initialRTOMs
			msg.SYN = true
			s.syn = true
		}

		payloadSize := currentWindow - s.SequenceNumbersInFlight() - msg.SequenceLength()
		if payloadSize > MaxPayloadSize {
			payloadSize = MaxPayloadSize
		}

		for uint64(len(msg.Payload)) < payloadSize {
			view := s.input.Peek()
			if len(view) == 0 {
				break
			}
			n := payloadSize - uint64(len(msg.Payload))
			if uint64(len(view)) < n {
				n = uint64(len(view))
			}
			msg.Payload = append(msg.Payload, view[:n]...)
			s.input.Pop(n)
		}

		if !s.fin && s.input.IsFinished() {
			if currentWindow > s.SequenceNumbersInFlight()+msg.SequenceLength() {
				msg.FIN = true
				s.fin = true
			}
		}

		if msg.SequenceLength() == 0 && !msg.RST {
			break
		}

		if !s.timerRunning {
			s.timerRunning = true
			s.timerMs = 0
		}

		transmit(msg)
		s.outstanding = append(s.outstanding, msg)
		s.nextSeqno += msg.SequenceLength()

		if msg.FIN || msg.RST {
			break
		}
	}
}

// MakeEmptyMessage returns a bare segment carrying no payload, SYN, or FIN,
// useful for sending a pure ACK outside of Push's flow-control logic.
func (s *Sender) MakeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: seqnum.Wrap(s.nextSeqno, s.isn),
		RST:   s.input.HasError(),
	}
}

// Receive processes an incoming ReceiverMessage, advancing the
// acknowledgment point and pruning fully-acknowledged outstanding segments.
func (s *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		s.input.SetError()
		return
	}
	s.windowSize = msg.WindowSize

	if msg.Ackno == nil {
		return
	}
	recvAck := msg.Ackno.Unwrap(s.isn, s.nextSeqno)
	if recvAck > s.nextSeqno {
		return
	}

	newDataAcked := false
	if recvAck > s.ackSeqno {
		s.ackSeqno = recvAck
		newDataAcked = true

		for len(s.outstanding) > 0 {
			seg := s.outstanding[0]
			segEnd := seg.Seqno.Unwrap(s.isn, s.nextSeqno) + seg.SequenceLength()
			if segEnd <= recvAck {
				s.outstanding = s.outstanding[1:]
			} else {
				break
			}
		}
	}

	if newDataAcked {
		s.currentRTOMs = s.initialRTOMs
		s.timerMs = 0
		s.consecutiveRetransmissions = 0
	}
	if len(s.outstanding) == 0 {
		s.timerRunning = false
	}
}

// Tick advances the retransmission timer by msSinceLastTick milliseconds,
// retransmitting the oldest outstanding segment and doubling the RTO (unless
// this is a zero-window probe) when it expires.
func (s *Sender) Tick(msSinceLastTick uint64, transmit TransmitFunc) {
	if !s.timerRunning {
		return
	}
	s.timerMs += msSinceLastTick
	if s.timerMs >= s.currentRTOMs {
		transmit(s.outstanding[0])
		if s.windowSize > 0 {
			s.consecutiveRetransmissions++
			s.currentRTOMs *= 2
		}
		s.timerMs = 0
	}
}
