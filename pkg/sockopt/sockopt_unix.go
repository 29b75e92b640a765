//go:build linux || darwin

package sockopt

import (
	"net"

	"golang.org/x/sys/unix"
)

func tune(conn *net.UDPConn, recvBytes, sendBytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBytes); err != nil {
			setErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendBytes); err != nil {
			setErr = err
			return
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}
