package tcp

import (
	"github.com/tinyrange/minnow/internal/reassembler"
	"github.com/tinyrange/minnow/internal/seqnum"
	"github.com/tinyrange/minnow/internal/stream"
)

// Receiver turns a sequence of possibly out-of-order SenderMessages into an
// in-order byte stream, latching its initial sequence number from the first
// SYN it sees.
type Receiver struct {
	reassembler *reassembler.Reassembler
	isn         *seqnum.Wrap32
}

// NewReceiver returns a Receiver whose reassembled bytes land in a fresh
// ByteStream of the given capacity.
func NewReceiver(capacity uint64) *Receiver {
	return &Receiver{reassembler: reassembler.New(stream.New(capacity))}
}

// Output returns the stream bytes are reassembled into.
func (r *Receiver) Output() *stream.ByteStream {
	return r.reassembler.Output()
}

// Receive processes one incoming segment.
func (r *Receiver) Receive(msg SenderMessage) {
	if msg.RST {
		r.Output().SetError()
		return
	}
	if msg.SYN && r.isn == nil {
		isn := msg.Seqno
		r.isn = &isn
	}
	if r.isn == nil {
		return
	}

	checkpoint := r.Output().BytesPushed()
	absSeqno := msg.Seqno.Unwrap(*r.isn, checkpoint)

	var streamIndex uint64
	if msg.SYN {
		streamIndex = absSeqno // absSeqno is 0 for SYN; +1-1 cancels
	} else {
		streamIndex = absSeqno - 1
	}
	r.reassembler.Insert(streamIndex, msg.Payload, msg.FIN)
}

// Send produces the next outgoing acknowledgment and window advertisement.
func (r *Receiver) Send() ReceiverMessage {
	var msg ReceiverMessage

	capacity := r.Output().AvailableCapacity()
	if capacity > MaxWindowSize {
		capacity = MaxWindowSize
	}
	msg.WindowSize = uint16(capacity)

	if r.isn != nil {
		absAckno := r.Output().BytesPushed() + 1
		if r.Output().IsClosed() {
			absAckno++
		}
		ackno := seqnum.Wrap(absAckno, *r.isn)
		msg.Ackno = &ackno
	}
	msg.RST = r.Output().HasError()
	return msg
}
