package tcp

import (
	"testing"

	"github.com/tinyrange/minnow/internal/seqnum"
	"github.com/tinyrange/minnow/internal/stream"
)

func TestSenderSynThenDataUnderSmallWindow(t *testing.T) {
	input := stream.New(100)
	input.Push([]byte("hello"))
	input.Close()

	isn := seqnum.Wrap32FromRaw(0)
	s := NewSender(input, isn, 1000)

	var sent []SenderMessage
	transmit := func(m SenderMessage) { sent = append(sent, m) }

	// Advertise a tiny window: only room for the SYN itself.
	s.Receive(ReceiverMessage{WindowSize: 1})
	s.Push(transmit)
	if len(sent) != 1 || !sent[0].SYN || sent[0].SequenceLength() != 1 {
		t.Fatalf("expected lone SYN under window=1, got %+v", sent)
	}

	ackSyn := seqnum.Wrap(1, isn)
	s.Receive(ReceiverMessage{Ackno: &ackSyn, WindowSize: 5})
	sent = nil
	s.Push(transmit)
	if len(sent) != 1 {
		t.Fatalf("expected one more segment, got %d", len(sent))
	}
	if sent[0].SYN {
		t.Fatal("second segment should not carry SYN again")
	}
	if string(sent[0].Payload) != "hello" {
		t.Fatalf("payload = %q, want %q", sent[0].Payload, "hello")
	}
	if sent[0].FIN {
		t.Fatal("FIN must not piggyback when it would exceed the advertised window")
	}

	ackData := seqnum.Wrap(6, isn)
	s.Receive(ReceiverMessage{Ackno: &ackData, WindowSize: 5})
	sent = nil
	s.Push(transmit)
	if len(sent) != 1 || !sent[0].FIN || len(sent[0].Payload) != 0 {
		t.Fatalf("expected a lone FIN segment once window allows it, got %+v", sent)
	}
}

func TestSenderRTOBackoffDoublesOnlyWithNonzeroWindow(t *testing.T) {
	input := stream.New(10)
	isn := seqnum.Wrap32FromRaw(0)
	s := NewSender(input, isn, 1000)

	var retransmits []SenderMessage
	s.Push(func(m SenderMessage) {}) // send SYN, starts timer at RTO=1000

	s.Tick(999, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 0 {
		t.Fatal("should not retransmit before RTO elapses")
	}
	s.Tick(1, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 1 {
		t.Fatalf("expected first retransmission at 1000ms, got %d", len(retransmits))
	}

	s.Tick(1999, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 1 {
		t.Fatal("should not retransmit before doubled RTO (2000ms) elapses")
	}
	s.Tick(1, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 2 {
		t.Fatalf("expected second retransmission at 3000ms total, got %d", len(retransmits))
	}

	s.Tick(3999, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 2 {
		t.Fatal("should not retransmit before next doubled RTO (4000ms) elapses")
	}
	s.Tick(1, func(m SenderMessage) { retransmits = append(retransmits, m) })
	if len(retransmits) != 3 {
		t.Fatalf("expected third retransmission at 7000ms total, got %d", len(retransmits))
	}
	if s.ConsecutiveRetransmissions() != 3 {
		t.Fatalf("consecutive retransmissions = %d, want 3", s.ConsecutiveRetransmissions())
	}
}

func TestSenderZeroWindowProbeDoesNotBackoff(t *testing.T) {
	input := stream.New(10)
	input.Push([]byte("x"))
	isn := seqnum.Wrap32FromRaw(0)
	s := NewSender(input, isn, 500)

	s.Push(func(m SenderMessage) {})
	ackSyn := seqnum.Wrap(1, isn)
	s.Receive(ReceiverMessage{Ackno: &ackSyn, WindowSize: 0})
	s.Push(func(m SenderMessage) {}) // zero-window probe of one byte

	s.Tick(500, func(m SenderMessage) {})
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("zero-window probe retransmission must not count toward backoff, got %d", s.ConsecutiveRetransmissions())
	}
}

func TestReceiverHandshakeAndData(t *testing.T) {
	r := NewReceiver(100)

	isn := seqnum.Wrap32FromRaw(5)
	r.Receive(SenderMessage{Seqno: isn, SYN: true})

	msg := r.Send()
	if msg.Ackno == nil {
		t.Fatal("expected ackno after SYN")
	}
	wantAck := seqnum.Wrap(1, isn)
	if msg.Ackno.Raw() != wantAck.Raw() {
		t.Fatalf("ackno = %v, want %v", msg.Ackno, wantAck)
	}

	r.Receive(SenderMessage{Seqno: seqnum.Wrap(1, isn), Payload: []byte("abc")})
	got := string(r.Output().Peek())
	if got != "abc" {
		t.Fatalf("reassembled = %q, want %q", got, "abc")
	}

	r.Receive(SenderMessage{Seqno: seqnum.Wrap(4, isn), FIN: true})
	msg2 := r.Send()
	wantAck2 := seqnum.Wrap(5, isn) // bytes_pushed(3)+1+1 for closed stream
	if msg2.Ackno.Raw() != wantAck2.Raw() {
		t.Fatalf("ackno after fin = %v, want %v", msg2.Ackno, wantAck2)
	}
	if !r.Output().IsClosed() {
		t.Fatal("output should be closed once FIN's stream index is reached")
	}
}

func TestReceiverWindowCappedAt65535(t *testing.T) {
	r := NewReceiver(1 << 20)
	msg := r.Send()
	if msg.WindowSize != 65535 {
		t.Fatalf("window size = %d, want 65535", msg.WindowSize)
	}
}

func TestReceiverRSTSetsStreamError(t *testing.T) {
	r := NewReceiver(10)
	r.Receive(SenderMessage{RST: true})
	if !r.Output().HasError() {
		t.Fatal("RST should mark the output stream errored")
	}
}
