package coap

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// maxDatagramSize bounds a received datagram.
const maxDatagramSize = 1280

// UDPEndpoint carries datagrams over a UDP socket. Received datagrams are
// handed to post so the receiver runs on the owning event loop.
type UDPEndpoint struct {
	conn   *net.UDPConn
	post   func(func())
	logger *slog.Logger

	mu     sync.RWMutex
	recv   Receiver
	routes map[netip.Addr]netip.AddrPort

	wg sync.WaitGroup
}

// ListenUDP binds addr and starts the reader goroutine. Close stops it.
func ListenUDP(addr netip.AddrPort, post func(func()), logger *slog.Logger) (*UDPEndpoint, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("coap: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &UDPEndpoint{
		conn:   conn,
		post:   post,
		logger: logger,
		routes: make(map[netip.Addr]netip.AddrPort),
	}

	e.wg.Add(1)
	go e.readLoop()

	return e, nil
}

// SetReceiver installs the datagram consumer.
func (e *UDPEndpoint) SetReceiver(r Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recv = r
}

// AddRoute sends traffic for a mesh-local address, such as the leader
// anycast locator, to a reachable UDP address instead.
func (e *UDPEndpoint) AddRoute(meshAddr netip.Addr, to netip.AddrPort) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[meshAddr] = to
}

// Send writes data to dst, following any route installed for dst's address.
func (e *UDPEndpoint) Send(dst netip.AddrPort, data []byte) error {
	e.mu.RLock()
	if to, ok := e.routes[dst.Addr()]; ok {
		dst = to
	}
	e.mu.RUnlock()

	_, err := e.conn.WriteToUDPAddrPort(data, dst)
	return err
}

// LocalAddr returns the bound socket address.
func (e *UDPEndpoint) LocalAddr() netip.AddrPort {
	return e.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close closes the socket and waits for the reader goroutine.
func (e *UDPEndpoint) Close() error {
	err := e.conn.Close()
	e.wg.Wait()
	return err
}

func (e *UDPEndpoint) readLoop() {
	defer e.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := e.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				e.logger.Warn("udp read failed", "error", err)
			}
			return
		}

		data := append([]byte(nil), buf[:n]...)
		src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())

		e.mu.RLock()
		recv := e.recv
		e.mu.RUnlock()
		if recv == nil {
			continue
		}

		e.post(func() { recv(src, data) })
	}
}

// Compile-time interface satisfaction check.
var _ Endpoint = (*UDPEndpoint)(nil)
