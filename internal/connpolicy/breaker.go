package connpolicy

import (
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
)

// State is a circuit breaker state.
type State int

const (
	// Closed allows connection attempts normally.
	Closed State = iota
	// Open suppresses connection attempts entirely.
	Open
	// HalfOpen allows exactly one probe attempt.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	// FailureThreshold is the number of consecutive connection failures
	// that trips the breaker open.
	FailureThreshold = 5
	// OpenDuration is how long the breaker stays Open before allowing a
	// single HalfOpen probe.
	OpenDuration = 30 * time.Second
)

// CircuitBreaker suppresses reconnection attempts after sustained
// failure, per spec §4.9: after FailureThreshold consecutive failures,
// enter Open for OpenDuration; then HalfOpen allows one attempt; success
// closes the breaker, failure reopens it with the timer restarted.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	halfOpenUse bool
	clk         clock.Clock
}

// NewCircuitBreaker creates a Closed breaker using clk as its time source.
func NewCircuitBreaker(clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.System
	}
	return &CircuitBreaker{state: Closed, clk: clk}
}

// Allow reports whether a connection attempt may proceed now. If the
// breaker is Open and OpenDuration has elapsed, it transitions to
// HalfOpen and allows exactly one attempt until RecordSuccess/Failure
// resolves it.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenUse {
			return false
		}
		b.halfOpenUse = true
		return true
	case Open:
		if b.clk.Now().Sub(b.openedAt) >= OpenDuration {
			b.state = HalfOpen
			b.halfOpenUse = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	b.state = Closed
	b.failures = 0
	b.halfOpenUse = false
	b.mu.Unlock()
}

// RecordFailure registers a failed connection attempt. In HalfOpen this
// reopens the breaker immediately with the timer restarted; in Closed it
// increments the consecutive-failure count and trips the breaker open
// once FailureThreshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.clk.Now()
		b.halfOpenUse = false
		b.failures = FailureThreshold
	default:
		b.failures++
		if b.failures >= FailureThreshold {
			b.state = Open
			b.openedAt = b.clk.Now()
		}
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
