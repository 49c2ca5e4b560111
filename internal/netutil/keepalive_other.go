//go:build !linux

package netutil

import (
	"net"
	"time"
)

// configureTCPKeepalive falls back to the portable period-only keepalive
// knob on non-Linux platforms; idle/interval cannot be set independently
// without platform-specific syscalls, so interval is used as the overall
// period as the closest portable approximation.
func configureTCPKeepalive(conn *net.TCPConn, idle, interval time.Duration, count int) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return conn.SetKeepAlivePeriod(interval)
}
