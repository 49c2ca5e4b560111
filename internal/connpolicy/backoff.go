// Package connpolicy implements the reconnect scheduling policy shared by
// ControlLink, TelemetryLink and VideoLink clients: exponential backoff
// with reset-on-success (spec §4.9), a circuit breaker that stops
// hammering a dead peer, and the TCP keepalive parameters used when
// establishing a socket.
//
// The backoff engine is the cenkalti/backoff exponential backoff
// generator rather than a hand-rolled doubling loop — it appeared as an
// unused indirect dependency in the teacher's go.mod and is the natural
// home for it. RandomizationFactor is pinned to zero so the sequence is
// exactly the one spec.md names: 1s, 2s, 4s, 8s, 16s, 32s (capped at 32s).
package connpolicy

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	// BackoffInitial is the first retry delay.
	BackoffInitial = 1 * time.Second
	// BackoffMax is the cap on retry delay.
	BackoffMax = 32 * time.Second
	// BackoffMultiplier doubles the delay on each consecutive failure.
	BackoffMultiplier = 2.0
)

// Backoff produces the reconnect delay sequence for one link's connect
// loop. It is not safe for concurrent use — each link owns one Backoff
// for its own connect loop.
type Backoff struct {
	eb *backoff.ExponentialBackOff
}

// NewBackoff creates a Backoff starting at BackoffInitial, capped at
// BackoffMax, with no randomization and no overall time limit (a link
// that cannot reach its peer keeps retrying for the life of the process).
func NewBackoff() *Backoff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = BackoffInitial
	eb.MaxInterval = BackoffMax
	eb.Multiplier = BackoffMultiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // never give up
	eb.Reset()
	return &Backoff{eb: eb}
}

// Next returns the next delay in the sequence. Call Reset after an
// Established transition so the next failure starts the sequence over.
func (b *Backoff) Next() time.Duration {
	d := b.eb.NextBackOff()
	if d == backoff.Stop {
		// MaxElapsedTime is 0 (disabled) so this is unreachable in
		// practice, but fall back to the cap rather than propagate -1.
		return BackoffMax
	}
	return d
}

// Reset restarts the sequence at BackoffInitial. Call this on every
// successful Established transition (spec §4.9).
func (b *Backoff) Reset() {
	b.eb.Reset()
}
