package connpolicy

import "time"

// TCP keepalive parameters (spec §4.2): idle ≈ 60s before the first
// probe, 10s between probes, 3 probes before the peer is declared dead —
// giving zombie-connection detection within ≤ 90s.
const (
	KeepaliveIdle     = 60 * time.Second
	KeepaliveInterval = 10 * time.Second
	KeepaliveCount    = 3
)

// Connect timeouts (spec §5).
const (
	ConnectTimeout        = 5 * time.Second
	ControlAcceptPoll     = 500 * time.Millisecond
	ControlReceiveTimeout = 1 * time.Second
	SendTimeout           = 500 * time.Millisecond
)
