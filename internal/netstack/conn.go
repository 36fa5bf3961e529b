package netstack

import (
	"errors"
	"io"
)

// Conn is one TCP connection's read/write half, backed by a tcp.Sender and
// tcp.Receiver. Its methods block under the owning Stack's mutex, the same
// lock DeliverFrame and Tick use, so a Read unblocks as soon as a
// concurrent DeliverFrame call pushes new bytes into the receiver.
type Conn struct {
	ep *endpoint
}

// Read blocks until at least one byte of reassembled data is available, the
// peer has closed its side (io.EOF), or the connection has errored.
func (c *Conn) Read(p []byte) (int, error) {
	ep := c.ep
	ep.stack.mu.Lock()
	defer ep.stack.mu.Unlock()

	for {
		view := ep.receiver.Output().Peek()
		if len(view) > 0 {
			n := copy(p, view)
			ep.receiver.Output().Pop(uint64(n))
			ep.pump()
			return n, nil
		}
		if ep.receiver.Output().IsFinished() {
			return 0, io.EOF
		}
		if ep.receiver.Output().HasError() {
			return 0, errors.New("netstack: connection reset")
		}
		ep.cond.Wait()
	}
}

// Write blocks until all of p has been accepted into the outbound stream,
// which may require waiting for the peer to advertise more window.
func (c *Conn) Write(p []byte) (int, error) {
	ep := c.ep
	ep.stack.mu.Lock()
	defer ep.stack.mu.Unlock()

	written := 0
	for written < len(p) {
		if ep.sender.Input().HasError() {
			return written, errors.New("netstack: connection reset")
		}
		room := ep.sender.Input().AvailableCapacity()
		if room == 0 {
			ep.cond.Wait()
			continue
		}
		n := room
		if remaining := uint64(len(p) - written); remaining < n {
			n = remaining
		}
		ep.sender.Input().Push(p[written : written+int(n)])
		written += int(n)
		ep.pump()
	}
	return written, nil
}

// Close signals that no more data will be written, sending a FIN once the
// outstanding data drains.
func (c *Conn) Close() error {
	ep := c.ep
	ep.stack.mu.Lock()
	defer ep.stack.mu.Unlock()

	ep.sender.Input().Close()
	ep.pump()
	ep.cond.Broadcast()
	return nil
}

// LocalAddr returns the connection's local IP and port.
func (c *Conn) LocalAddr() ([4]byte, uint16) {
	return c.ep.tuple.localIP, c.ep.tuple.localPort
}

// RemoteAddr returns the connection's remote IP and port.
func (c *Conn) RemoteAddr() ([4]byte, uint16) {
	return c.ep.tuple.remoteIP, c.ep.tuple.remotePort
}
