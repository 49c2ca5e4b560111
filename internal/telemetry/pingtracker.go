package telemetry

import "sync"

// PingTracker records the most recent Ping the robot's CommandDispatcher
// observed, so Composer can echo it back as the telemetry frame's
// LastPong. It has no teacher analog; it exists solely to decouple
// control (which sees the Ping command) from telemetry (which reports
// it) without either package importing dispatch.
type PingTracker struct {
	mu      sync.Mutex
	ts      float64
	seq     uint64
	hasPing bool
}

// Record stores the latest observed ping.
func (t *PingTracker) Record(ts float64, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ts = ts
	t.seq = seq
	t.hasPing = true
}

// Snapshot returns the last recorded ping, or ok=false if none has been
// seen yet.
func (t *PingTracker) Snapshot() (p Pong, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasPing {
		return Pong{}, false
	}
	return Pong{PingTs: t.ts, PingSeq: t.seq}, true
}
