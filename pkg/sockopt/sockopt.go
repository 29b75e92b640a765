// Package sockopt tunes the UDP socket's kernel buffer sizes so a
// burst of phone datagrams at 120 Hz doesn't overrun the receive
// queue between ticks. The platform-specific syscalls live in the
// build-tagged files in this package.
package sockopt

import "net"

// recvBufBytes and sendBufBytes are generous relative to the ~200
// byte datagrams this protocol uses; a few hundred in flight should
// never approach this.
const (
	recvBufBytes = 262144
	sendBufBytes = 262144
)

// Tune applies OS-level socket buffer sizing to conn. Failures are
// logged by the caller, not fatal: the endpoint still works with the
// OS default buffer sizes, just with less slack under burst load.
func Tune(conn *net.UDPConn) error {
	return tune(conn, recvBufBytes, sendBufBytes)
}
