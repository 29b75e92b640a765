//go:build windows

package sockopt

import (
	"net"

	"golang.org/x/sys/windows"
)

func tune(conn *net.UDPConn, recvBytes, sendBytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var setErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, recvBytes); err != nil {
			setErr = err
			return
		}
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_SNDBUF, sendBytes); err != nil {
			setErr = err
			return
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return setErr
}
