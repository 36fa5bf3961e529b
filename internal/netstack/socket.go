package netstack

import (
	"errors"
	"sync"
)

// ErrAddressInUse is returned by DialTCP or ListenTCP when the requested
// four-tuple or listening address is already taken.
var ErrAddressInUse = errors.New("netstack: address already in use")

// Listener accepts incoming TCP connections for one listening address.
type Listener struct {
	stack   *Stack
	key     listenKey
	pending []*endpoint
	cond    *sync.Cond
	closed  bool
}

// ListenTCP registers a passive-open listener. An ip of the zero value
// matches connections to any local interface address.
func (s *Stack) ListenTCP(ip [4]byte, port uint16) (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := listenKey{ip: ip, port: port}
	if _, exists := s.listeners[key]; exists {
		return nil, ErrAddressInUse
	}
	l := &Listener{stack: s, key: key}
	l.cond = sync.NewCond(&s.mu)
	s.listeners[key] = l
	s.metrics.activeListeners.Inc()
	return l, nil
}

// Accept blocks until a new connection arrives, returning it.
func (l *Listener) Accept() (*Conn, error) {
	l.stack.mu.Lock()
	defer l.stack.mu.Unlock()

	for len(l.pending) == 0 && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		return nil, errors.New("netstack: listener closed")
	}
	ep := l.pending[0]
	l.pending = l.pending[1:]
	return &Conn{ep: ep}, nil
}

// Close stops the listener from accepting further connections. Already
// pending connections are discarded.
func (l *Listener) Close() error {
	l.stack.mu.Lock()
	defer l.stack.mu.Unlock()

	l.closed = true
	delete(l.stack.listeners, l.key)
	l.stack.metrics.activeListeners.Dec()
	l.cond.Broadcast()
	return nil
}

// DialTCP opens an active connection from localIP:localPort (localPort 0
// picks an ephemeral port) to remoteIP:remotePort, blocking until the
// three-way handshake completes.
func (s *Stack) DialTCP(localIP [4]byte, localPort uint16, remoteIP [4]byte, remotePort uint16) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if localPort == 0 {
		localPort = s.allocEphemeralPortLocked()
	}
	tuple := fourTuple{localIP: localIP, localPort: localPort, remoteIP: remoteIP, remotePort: remotePort}
	if _, exists := s.endpoints[tuple]; exists {
		return nil, ErrAddressInUse
	}

	ep := s.newEndpoint(tuple)
	ep.state = stateSynSent
	s.endpoints[tuple] = ep
	s.metrics.activeConnections.Inc()
	ep.pump()

	for ep.state != stateEstablished && !ep.sender.Input().HasError() {
		ep.cond.Wait()
	}
	if ep.sender.Input().HasError() {
		delete(s.endpoints, tuple)
		s.metrics.activeConnections.Dec()
		return nil, errors.New("netstack: connection reset")
	}
	return &Conn{ep: ep}, nil
}

func (s *Stack) allocEphemeralPortLocked() uint16 {
	port := s.nextEphPort
	s.nextEphPort++
	if s.nextEphPort == 0 {
		s.nextEphPort = 49152
	}
	return port
}
