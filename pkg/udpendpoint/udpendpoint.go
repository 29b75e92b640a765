// Package udpendpoint wraps a bound UDP socket with the peer-pinning
// and non-blocking recv semantics the session loop needs: one phone
// peer is served at a time, and strays on the LAN cannot stomp an
// active session.
package udpendpoint

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/sockopt"
)

// ErrBind wraps any failure to bind the listen socket so the caller
// can map it to its own exit policy.
var ErrBind = errors.New("udpendpoint: bind failed")

// recvPollTimeout bounds how long TryRecv blocks on a single read
// attempt; the session loop calls TryRecv repeatedly until it returns
// ok=false, so this just keeps any one call from stalling the tick.
const recvPollTimeout = 1 * time.Millisecond

// pinGracePeriod is how long after the pinned peer's last Pin TryRecv
// drops datagrams from other senders. Later datagrams from them are
// returned to the caller, but Pin still adopts a different sender only
// after ReleasePeer.
const pinGracePeriod = 2 * time.Second

const maxDatagramSize = 2048

// Endpoint is a bound UDP socket with single-peer pinning.
type Endpoint struct {
	conn *net.UDPConn
	buf  []byte
	diag *diag.Counters

	peer     *net.UDPAddr
	pinnedAt time.Time
	hasPeer  bool

	tuneErr error
}

// Listen binds to 0.0.0.0:port and applies pkg/sockopt's buffer
// tuning. A tuning failure is non-fatal and recorded for the caller to
// log via TuneWarning. d may be nil; drop counting is then skipped.
func Listen(port int, d *diag.Counters) (*Endpoint, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrBind, port, err)
	}
	e := &Endpoint{conn: conn, buf: make([]byte, maxDatagramSize), diag: d}
	e.tuneErr = sockopt.Tune(conn)
	return e, nil
}

// TuneWarning reports a non-fatal error from the OS-level socket
// buffer tuning applied at Listen time, or nil if it succeeded.
func (e *Endpoint) TuneWarning() error {
	return e.tuneErr
}

// Close releases the socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// TryRecv attempts to read one datagram without blocking for more
// than recvPollTimeout. It returns ok=false on timeout (no data
// available), a transient read error, or when the datagram is from a
// non-pinned peer still inside its grace period. TryRecv never pins:
// adoption is the caller's call, via Pin, once the payload has
// validated.
func (e *Endpoint) TryRecv() (payload []byte, peer *net.UDPAddr, ok bool) {
	e.conn.SetReadDeadline(time.Now().Add(recvPollTimeout))
	n, from, err := e.conn.ReadFromUDP(e.buf)
	if err != nil {
		var ne net.Error
		if !(errors.As(err, &ne) && ne.Timeout()) && e.diag != nil {
			e.diag.UDPReadErrors.Add(1)
		}
		return nil, nil, false
	}

	if e.hasPeer && !addrEqual(from, e.peer) && time.Since(e.pinnedAt) < pinGracePeriod {
		if e.diag != nil {
			e.diag.PeerRejected.Add(1)
		}
		return nil, nil, false
	}

	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, from, true
}

// Pin adopts addr as the session peer, or refreshes the grace-period
// timer when addr is already pinned. While a different peer is pinned
// the call is a no-op: a pinned peer is only displaced by ReleasePeer.
// Callers must pin from validated packets only, never raw datagrams,
// so garbage traffic can neither claim nor hold the session.
func (e *Endpoint) Pin(addr *net.UDPAddr) {
	if e.hasPeer && !addrEqual(addr, e.peer) {
		return
	}
	e.peer = addr
	e.hasPeer = true
	e.pinnedAt = time.Now()
}

// Send writes payload to peer.
func (e *Endpoint) Send(payload []byte, peer *net.UDPAddr) error {
	_, err := e.conn.WriteToUDP(payload, peer)
	if err != nil {
		return fmt.Errorf("udpendpoint: send: %w", err)
	}
	return nil
}

// ReleasePeer unpins the current peer so any sender may be adopted
// next.
func (e *Endpoint) ReleasePeer() {
	e.hasPeer = false
	e.peer = nil
}

// Peer returns the currently pinned peer, if any.
func (e *Endpoint) Peer() (*net.UDPAddr, bool) {
	return e.peer, e.hasPeer
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
