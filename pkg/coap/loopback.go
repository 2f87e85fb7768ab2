package coap

import (
	"errors"
	"net/netip"
	"sync"
)

// ErrClosed is returned when sending on a closed endpoint.
var ErrClosed = errors.New("coap: endpoint closed")

// Receiver consumes datagrams delivered to an endpoint.
type Receiver func(src netip.AddrPort, data []byte)

type datagram struct {
	src  netip.AddrPort
	dst  netip.AddrPort
	data []byte
}

// Loopback is an in-process datagram network. Sends are queued and only
// delivered by Flush, so a test controls exactly when handlers run.
type Loopback struct {
	mu      sync.Mutex
	routes  map[netip.AddrPort]*LoopbackEndpoint
	queue   []datagram
	drop    func(src, dst netip.AddrPort) bool
	dropped int
}

// NewLoopback creates an empty network.
func NewLoopback() *Loopback {
	return &Loopback{routes: make(map[netip.AddrPort]*LoopbackEndpoint)}
}

// Endpoint attaches a new endpoint with the given address.
func (l *Loopback) Endpoint(addr netip.AddrPort) *LoopbackEndpoint {
	ep := &LoopbackEndpoint{net: l, addr: addr}

	l.mu.Lock()
	l.routes[addr] = ep
	l.mu.Unlock()

	return ep
}

// SetDrop installs a predicate that discards matching datagrams. Nil
// delivers everything.
func (l *Loopback) SetDrop(drop func(src, dst netip.AddrPort) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drop = drop
}

// Queued returns the number of datagrams waiting for Flush.
func (l *Loopback) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Dropped returns how many datagrams were discarded.
func (l *Loopback) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Flush delivers queued datagrams, including those sent while delivering,
// until the queue is empty. It returns the number delivered.
func (l *Loopback) Flush() int {
	delivered := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return delivered
		}
		d := l.queue[0]
		l.queue = l.queue[1:]
		ep := l.routes[d.dst]
		drop := l.drop != nil && l.drop(d.src, d.dst)
		if ep == nil || drop {
			l.dropped++
		}
		l.mu.Unlock()

		if ep == nil || drop {
			continue
		}
		if recv := ep.receiver(); recv != nil {
			recv(d.src, d.data)
			delivered++
		}
	}
}

func (l *Loopback) enqueue(d datagram) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, d)
}

// LoopbackEndpoint is one attachment to a Loopback network.
type LoopbackEndpoint struct {
	net  *Loopback
	addr netip.AddrPort

	mu     sync.Mutex
	recv   Receiver
	closed bool
}

// SetReceiver installs the datagram consumer, usually Agent.Receive.
func (e *LoopbackEndpoint) SetReceiver(r Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recv = r
}

func (e *LoopbackEndpoint) receiver() Receiver {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return e.recv
}

// AddAddress makes the endpoint reachable at an additional address, such as
// an anycast locator.
func (e *LoopbackEndpoint) AddAddress(addr netip.AddrPort) {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	e.net.routes[addr] = e
}

// RemoveAddress withdraws an address added with AddAddress.
func (e *LoopbackEndpoint) RemoveAddress(addr netip.AddrPort) {
	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	if e.net.routes[addr] == e && addr != e.addr {
		delete(e.net.routes, addr)
	}
}

// Send queues a copy of data for dst. Unknown destinations are dropped at
// delivery time, as on a real datagram network.
func (e *LoopbackEndpoint) Send(dst netip.AddrPort, data []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	e.net.enqueue(datagram{
		src:  e.addr,
		dst:  dst,
		data: append([]byte(nil), data...),
	})
	return nil
}

// LocalAddr returns the endpoint's primary address.
func (e *LoopbackEndpoint) LocalAddr() netip.AddrPort {
	return e.addr
}

// Close detaches the endpoint.
func (e *LoopbackEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.net.mu.Lock()
	defer e.net.mu.Unlock()
	for addr, ep := range e.net.routes {
		if ep == e {
			delete(e.net.routes, addr)
		}
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ Endpoint = (*LoopbackEndpoint)(nil)
