//go:build linux

package netutil

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// configureTCPKeepalive sets TCP_KEEPIDLE/TCP_KEEPINTVL/TCP_KEEPCNT via
// raw setsockopt calls, mirroring how the teacher's internal/socketcan
// talks to the kernel directly through golang.org/x/sys/unix rather than
// a higher-level wrapper.
func configureTCPKeepalive(conn *net.TCPConn, idle, interval time.Duration, count int) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctlErr := raw.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(idle.Seconds())); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(interval.Seconds())); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, count)
	})
	if ctlErr != nil {
		return ctlErr
	}
	return sockErr
}
