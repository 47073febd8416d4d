package netcore

import (
	"fmt"
	"net"
	"sync"
)

// fakeAddr is a minimal net.Addr for in-memory sockets so tests don't
// need real ports.
type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeSocket is an in-memory Socket backed by a channel, wired to a
// shared fakeNetwork so two fakeSockets can exchange datagrams without
// touching a real interface. Grounded on the reliable-UDP conn fake
// pattern from the pack (in-memory transport for deterministic tests).
type fakeSocket struct {
	addr fakeAddr
	net  *fakeNetwork
	in   chan fakeDatagram

	mu   sync.Mutex
	drop func(from, to net.Addr) bool
	closed bool
}

type fakeDatagram struct {
	data []byte
	from net.Addr
}

// fakeNetwork routes datagrams between fakeSockets registered on it by
// address, simulating the shared medium a real LAN or loopback would be.
type fakeNetwork struct {
	mu      sync.Mutex
	sockets map[fakeAddr]*fakeSocket
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{sockets: make(map[fakeAddr]*fakeSocket)}
}

func (n *fakeNetwork) newSocket(addr fakeAddr) *fakeSocket {
	s := &fakeSocket{addr: addr, net: n, in: make(chan fakeDatagram, 256)}
	n.mu.Lock()
	n.sockets[addr] = s
	n.mu.Unlock()
	return s
}

func (s *fakeSocket) LocalAddr() net.Addr { return s.addr }

func (s *fakeSocket) SendTo(b []byte, addr net.Addr) (int, error) {
	dst, ok := addr.(fakeAddr)
	if !ok {
		return 0, fmt.Errorf("%w: not a fake address: %v", ErrSocketSendFailed, addr)
	}

	s.mu.Lock()
	drop := s.drop
	s.mu.Unlock()
	if drop != nil && drop(s.addr, dst) {
		return len(b), nil
	}

	s.net.mu.Lock()
	peer, ok := s.net.sockets[dst]
	s.net.mu.Unlock()
	if !ok {
		// No listener at dst: real UDP would silently drop this too.
		return len(b), nil
	}

	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case peer.in <- fakeDatagram{data: cp, from: s.addr}:
	default:
		// peer's inbound buffer is full: simulate it as a lost datagram
		// rather than blocking the sender.
	}
	return len(b), nil
}

func (s *fakeSocket) ReceiveFrom(b []byte) (int, net.Addr, error) {
	dgram, ok := <-s.in
	if !ok {
		return 0, nil, fmt.Errorf("%w: socket closed", ErrSocketRecvFailed)
	}
	n := copy(b, dgram.data)
	return n, dgram.from, nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.in)
	s.net.mu.Lock()
	delete(s.net.sockets, s.addr)
	s.net.mu.Unlock()
	return nil
}

// setDrop installs a predicate invoked on every SendTo from this socket;
// a true return simulates the datagram never arriving.
func (s *fakeSocket) setDrop(f func(from, to net.Addr) bool) {
	s.mu.Lock()
	s.drop = f
	s.mu.Unlock()
}
