// Package udpconn implements replica.Transport over a real UDP socket: a
// bounded-wait receive, a fire-and-forget send, and fan-out of the "FFFF"
// broadcast destination to every configured peer. It is the concrete
// transport internal/replica.Node drives in production; tests use an
// in-memory stand-in instead.
package udpconn

import (
	"fmt"
	"net"
	"time"

	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// Conn binds one local UDP socket and knows how to reach every peer by
// address: a resolver plus a sender, the same split an HTTP-RPC transport
// would use, reworked for datagrams instead of request/response calls.
type Conn struct {
	sock  *net.UDPConn
	peers map[types.NodeID]*net.UDPAddr
	buf   []byte
}

// Dial binds a UDP socket on localPort and resolves every peer address in
// peers (id -> host:port), matching the simulator-supplied addressing
// described in spec §6.
func Dial(localPort int, peers map[types.NodeID]string) (*Conn, error) {
	sock, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("udpconn: bind port %d: %w", localPort, err)
	}

	resolved := make(map[types.NodeID]*net.UDPAddr, len(peers))
	for id, addr := range peers {
		a, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			sock.Close()
			return nil, fmt.Errorf("udpconn: resolve peer %s at %q: %w", id, addr, err)
		}
		resolved[id] = a
	}

	return &Conn{sock: sock, peers: resolved, buf: make([]byte, wire.MaxDatagramSize)}, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// Send implements replica.Transport. A destination of types.Broadcast fans
// the envelope out to every known peer; anything else goes to exactly one
// address. Per spec §5, sends are fire-and-forget — the first unresolvable
// peer on a broadcast does not stop delivery to the rest.
func (c *Conn) Send(env wire.Envelope) error {
	if env.Dst == types.Broadcast {
		return c.broadcast(env)
	}

	addr, ok := c.peers[env.Dst]
	if !ok {
		return fmt.Errorf("udpconn: unknown destination %s", env.Dst)
	}
	return c.sendTo(env, addr)
}

func (c *Conn) broadcast(env wire.Envelope) error {
	var firstErr error
	for id, addr := range c.peers {
		env.Dst = id
		if err := c.sendTo(env, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Conn) sendTo(env wire.Envelope, addr *net.UDPAddr) error {
	b, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("udpconn: encode: %w", err)
	}
	_, err = c.sock.WriteToUDP(b, addr)
	return err
}

// Recv implements replica.Transport: it waits up to timeout for one
// datagram. A timeout is not an error — it's the event loop's normal tick
// boundary (spec §4.1). A datagram that fails to decode is reported as an
// error so the event loop can log-and-drop it per spec §4.1/§7, without
// Recv itself ever blocking past the deadline on a malformed payload.
func (c *Conn) Recv(timeout time.Duration) (wire.Envelope, bool, error) {
	if err := c.sock.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return wire.Envelope{}, false, fmt.Errorf("udpconn: set deadline: %w", err)
	}

	n, _, err := c.sock.ReadFromUDP(c.buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return wire.Envelope{}, false, nil
		}
		return wire.Envelope{}, false, fmt.Errorf("udpconn: read: %w", err)
	}

	env, err := wire.Decode(c.buf[:n])
	if err != nil {
		return wire.Envelope{}, false, err
	}
	return env, true, nil
}
