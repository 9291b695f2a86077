package pinpadsession

import (
	"fmt"
	"net"
	"time"
)

// MTU bounds every RECEIVE_DATA chunk (spec.md §4.6 step 2, §6 "MTU for
// RECEIVE_DATA = 0x0400 bytes").
const MTU = 1024

// proxySocket is one device-initiated socket the gateway proxies on the
// card reader's behalf (spec.md §4.6 "External-internet event", GLOSSARY
// "Socket proxy").
type proxySocket struct {
	conn net.Conn
}

// SocketProxy maps device-assigned socket ids to the OS sockets the
// gateway opened for them.
type SocketProxy struct {
	sockets map[byte]*proxySocket
}

// NewSocketProxy builds an empty proxy set for one transaction.
func NewSocketProxy() *SocketProxy {
	return &SocketProxy{sockets: make(map[byte]*proxySocket)}
}

// Open dials a TCP or UDP socket for a device-assigned id (spec.md §4.6
// "SOCKET_OPEN").
func (p *SocketProxy) Open(id byte, network string, host string, port uint16, timeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return err
	}
	p.sockets[id] = &proxySocket{conn: conn}
	return nil
}

// Close closes and forgets the socket mapped to id (spec.md §4.6
// "SOCKET_CLOSE").
func (p *SocketProxy) Close(id byte) error {
	s, ok := p.sockets[id]
	if !ok {
		return fmt.Errorf("pinpad: no proxy socket for id %d", id)
	}
	delete(p.sockets, id)
	return s.conn.Close()
}

// CloseAll tears down every open proxy socket (spec.md §4.6 step 3 of
// "After TRANSACTION_COMPLETE").
func (p *SocketProxy) CloseAll() {
	for id, s := range p.sockets {
		s.conn.Close()
		delete(p.sockets, id)
	}
}

// HasOpen reports whether any proxy socket is currently open, which
// shortens the per-iteration read deadline (spec.md §4.6 step 3: "≥ 100 ms
// when any socket is open, 1 s otherwise").
func (p *SocketProxy) HasOpen() bool {
	return len(p.sockets) > 0
}

// Send forwards data to the socket mapped to id (spec.md §4.6
// "SEND_DATA").
func (p *SocketProxy) Send(id byte, data []byte) error {
	s, ok := p.sockets[id]
	if !ok {
		return fmt.Errorf("pinpad: no proxy socket for id %d", id)
	}
	_, err := s.conn.Write(data)
	return err
}

// PollOnce performs one non-blocking-ish read of up to MTU bytes from the
// socket mapped to id, returning an empty slice if nothing is
// immediately available (spec.md §4.6 step 2 "Forward host bytes" and
// "SEND_DATA: ...then poll the socket once for any immediate reply").
func (p *SocketProxy) PollOnce(id byte) ([]byte, error) {
	s, ok := p.sockets[id]
	if !ok {
		return nil, fmt.Errorf("pinpad: no proxy socket for id %d", id)
	}
	s.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, MTU)
	n, err := s.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

// ids returns the currently open socket ids, in no particular order, for
// iterating the forward-host-bytes step.
func (p *SocketProxy) ids() []byte {
	out := make([]byte, 0, len(p.sockets))
	for id := range p.sockets {
		out = append(out, id)
	}
	return out
}
