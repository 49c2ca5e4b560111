package linkutil

import "sync/atomic"

// ConnState is the connection lifecycle shared by every client-role link
// (ControlLink's base side, TelemetryLink's robot side, VideoLink's
// sender): Disconnected → Connecting → Established → Draining →
// Disconnected.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Established
	Draining
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Established:
		return "established"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// StateBox holds a ConnState for atomic, lock-free reads from any
// goroutine — used to answer telemetry.LinkState's Established() without
// taking the connect loop's own lock.
type StateBox struct {
	v atomic.Int32
}

// Set stores s.
func (b *StateBox) Set(s ConnState) { b.v.Store(int32(s)) }

// Get loads the current state.
func (b *StateBox) Get() ConnState { return ConnState(b.v.Load()) }

// Established reports whether the current state is Established,
// satisfying telemetry.LinkState and similar consumers.
func (b *StateBox) Established() bool { return b.Get() == Established }
