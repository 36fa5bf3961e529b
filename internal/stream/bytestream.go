// Package stream implements a bounded, single-owner FIFO byte buffer split
// into writer and reader halves, the foundation both TCPSender (reads from
// one) and TCPReceiver (writes to one, via a Reassembler) are built on.
package stream

// ByteStream is a fixed-capacity FIFO of bytes. The zero value is not
// usable; construct with New.
type ByteStream struct {
	capacity uint64
	buf      []byte

	pushed uint64
	popped uint64

	closed bool
	errSet bool
}

// New returns a ByteStream with the given capacity in bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{capacity: capacity}
}

// Capacity returns the stream's fixed capacity.
func (s *ByteStream) Capacity() uint64 {
	return s.capacity
}

////////////////////////////////////////////////////////////////////////////
// Writer half.
////////////////////////////////////////////////////////////////////////////

// Push appends as much of data as available capacity allows. If the stream
// is closed, or data is empty, it is a no-op. Bytes beyond available
// capacity are silently dropped — callers that need backpressure should
// check AvailableCapacity first.
func (s *ByteStream) Push(data []byte) {
	if s.closed || len(data) == 0 {
		return
	}
	room := s.AvailableCapacity()
	n := uint64(len(data))
	if n > room {
		n = room
	}
	if n == 0 {
		return
	}
	s.buf = append(s.buf, data[:n]...)
	s.pushed += n
}

// Close signals that no further bytes will be pushed.
func (s *ByteStream) Close() {
	s.closed = true
}

// SetError marks the stream as errored. Sticky: once set, always set.
func (s *ByteStream) SetError() {
	s.errSet = true
}

// IsClosed reports whether Close has been called.
func (s *ByteStream) IsClosed() bool {
	return s.closed
}

// AvailableCapacity returns how many bytes may still be pushed.
func (s *ByteStream) AvailableCapacity() uint64 {
	return s.capacity - uint64(len(s.buf))
}

// BytesPushed returns the cumulative number of bytes ever pushed.
func (s *ByteStream) BytesPushed() uint64 {
	return s.pushed
}

// HasError reports whether the stream has been marked errored.
func (s *ByteStream) HasError() bool {
	return s.errSet
}

////////////////////////////////////////////////////////////////////////////
// Reader half.
////////////////////////////////////////////////////////////////////////////

// Peek returns a view of the currently buffered bytes, as long a run as is
// contiguously available. The returned slice aliases internal storage and
// must not be retained past the next mutating call.
func (s *ByteStream) Peek() []byte {
	if len(s.buf) == 0 {
		return nil
	}
	return s.buf
}

// Pop discards up to n bytes from the front of the buffer.
func (s *ByteStream) Pop(n uint64) {
	if n > uint64(len(s.buf)) {
		n = uint64(len(s.buf))
	}
	if n == 0 {
		return
	}
	s.buf = s.buf[n:]
	s.popped += n
}

// IsFinished reports whether the stream is closed and fully drained.
func (s *ByteStream) IsFinished() bool {
	return s.closed && len(s.buf) == 0
}

// BytesBuffered returns the number of bytes currently held, pushed but not
// yet popped.
func (s *ByteStream) BytesBuffered() uint64 {
	return uint64(len(s.buf))
}

// BytesPopped returns the cumulative number of bytes ever popped.
func (s *ByteStream) BytesPopped() uint64 {
	return s.popped
}
