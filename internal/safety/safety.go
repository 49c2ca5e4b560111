// Package safety implements SafetyCore, the robot-side latch that makes
// the bridge fail safe: actuation only ever reaches hardware through
// Gate, and Gate refuses to run its action while the E-STOP flag is
// engaged. There is no teacher file that does this directly — the
// nearest analog is how go-ampio-server's internal/server guards every
// connection mutation behind a single mutex and classifies every
// failure path explicitly (errors.go's mapErrToMetric) rather than
// letting anything fall through silently; SafetyCore borrows that
// discipline (one mutex, one owner, exhaustively named reasons) and
// applies it to an actuation gate instead of a connection map.
package safety

import (
	"math"
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
)

// Immutable safety constants, not overridable by configuration.
const (
	WatchdogTimeout    = 5 * time.Second
	StartupGrace       = 30 * time.Second
	ClearMaxAge        = 1500 * time.Millisecond
	ClearConfirm       = "ESTOP_CLEAR_CONFIRM"
	DebounceWindow     = 300 * time.Millisecond
)

// Reason tags. Free-form in principle, but these are the ones the rest
// of the system is expected to use so log/telemetry consumers can rely
// on a closed vocabulary.
const (
	ReasonBootDefault     = "boot_default"
	ReasonWatchdogTimeout = "watchdog_timeout"
	ReasonAuthFailure     = "auth_failure"
	ReasonDecodeError     = "decode_error"
	ReasonOperatorEngage  = "operator_engage"
	ReasonBufferOverflow  = "buffer_overflow"
	ReasonDisconnect      = "disconnect"
	ReasonStartupTimeout  = "startup_timeout"
	ReasonShutdown        = "shutdown"
	ReasonActuatorError   = "actuator_error"
)

// ClearRejection is the explicit rejection code returned by Clear when a
// guard fails. The zero value means acceptance.
type ClearRejection string

const (
	RejectNone         ClearRejection = ""
	RejectWrongConfirm ClearRejection = "wrong_confirm"
	RejectStaleControl ClearRejection = "stale_control"
	RejectDisconnected ClearRejection = "disconnected"
)

// Actuator is the narrow capability SafetyCore needs: an immediate,
// side-effecting stop. A concrete actuator additionally implements
// Apply, but that method is invoked by callers inside Gate's closure,
// never by SafetyCore itself, so it has no place in this interface.
type Actuator interface {
	StopAll()
}

// State is a read-only snapshot of the latch, safe to copy and hold
// after the call that produced it returns.
type State struct {
	Engaged            bool
	Reason             string
	ChangedAt          time.Time
	ControlConnected   bool
	TelemetryConnected bool
	ControlEstablished bool
}

// Core is the robot-side E-STOP latch. The zero value is not usable;
// construct with New. All state transitions happen under mu, and Gate
// reuses the same mutex so no actuation can begin concurrently with (or
// immediately after) an Engage call returning.
type Core struct {
	mu sync.Mutex

	engaged   bool
	reason    string
	changedAt time.Time

	processStart       time.Time
	lastControlTime    time.Time
	controlEstablished bool
	controlConnected   bool
	telemetryConnected bool

	lastEmit time.Time

	actuator Actuator
	clock    clock.Clock

	gatedOutCount uint64
}

// New constructs a Core latched engaged with reason "boot_default", per
// the invariant that no control has yet been accepted at process start.
func New(actuator Actuator, clk clock.Clock) *Core {
	now := clk.Now()
	return &Core{
		engaged:      true,
		reason:       ReasonBootDefault,
		changedAt:    now,
		processStart: now,
		actuator:     actuator,
		clock:        clk,
	}
}

// Engage latches the E-STOP if it is not already engaged, stopping the
// actuator inside the critical section. If already engaged, the reason
// is updated (the latest cause is recorded) but the actuator is not
// stopped again — engage is idempotent with respect to the observable
// flag.
func (c *Core) Engage(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engageLocked(reason)
}

func (c *Core) engageLocked(reason string) {
	now := c.clock.Now()
	if !c.engaged {
		c.engaged = true
		c.reason = reason
		c.changedAt = now
		c.actuator.StopAll()
		metrics.IncEstopTransition(reason)
		metrics.SetEstopEngaged(true)
		c.emitLocked(now)
		return
	}
	if c.reason != reason {
		c.reason = reason
	}
}

// Clear attempts to release the latch. All three guards must hold:
// confirm must match byte-for-byte, the control link must be connected,
// and control_age must not exceed ClearMaxAge. On any failure the state
// is untouched and the specific rejection is returned.
func (c *Core) Clear(confirm string, controlConnected bool, controlAge time.Duration) ClearRejection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if confirm != ClearConfirm {
		metrics.IncClearRejection(string(RejectWrongConfirm))
		return RejectWrongConfirm
	}
	if !controlConnected {
		metrics.IncClearRejection(string(RejectDisconnected))
		return RejectDisconnected
	}
	if controlAge > ClearMaxAge {
		metrics.IncClearRejection(string(RejectStaleControl))
		return RejectStaleControl
	}

	now := c.clock.Now()
	c.engaged = false
	c.reason = ""
	c.changedAt = now
	metrics.SetEstopEngaged(false)
	c.emitLocked(now)
	return RejectNone
}

// Gate is the only path by which a command may reach the actuator. It
// invokes action inside the same critical section Engage uses, so no
// actuation can start after an Engage call has returned, and no Engage
// call can observe a half-finished actuation. It reports whether action
// ran; when action returns an error, the latch engages defensively with
// ReasonActuatorError, matching the spec's treatment of ActuatorError
// raised from inside a gated call.
func (c *Core) Gate(action func() error) (invoked bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engaged {
		c.gatedOutCount++
		return false, nil
	}
	err = action()
	if err != nil {
		c.engageLocked(ReasonActuatorError)
	}
	return true, err
}

// Tick runs the watchdog's two checks, in order. It must be driven at
// ≥ 1 Hz by a scheduling unit independent of any I/O loop.
func (c *Core) Tick(now time.Time, controlConnected, telemetryConnected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlConnected = controlConnected
	c.telemetryConnected = telemetryConnected

	if !c.controlEstablished && now.Sub(c.processStart) > StartupGrace {
		c.engageLocked(ReasonStartupTimeout)
	}
	if c.controlEstablished && now.Sub(c.lastControlTime) > WatchdogTimeout {
		c.engageLocked(ReasonWatchdogTimeout)
	}
}

// NoteControl records that an authenticated control frame was just
// accepted. Once set, ControlEstablished is sticky for the life of the
// process.
func (c *Core) NoteControl(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastControlTime = now
	c.controlEstablished = true
}

// ControlAge reports how long it has been since the last authenticated
// control frame, for inclusion in telemetry's control_age_ms field. If
// no control has ever been established it returns math.MaxInt64
// nanoseconds, i.e. "effectively forever".
func (c *Core) ControlAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.controlEstablished {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(c.lastControlTime)
}

// Snapshot returns the current state for status emission and telemetry
// composition. Safe to call at any rate.
func (c *Core) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Engaged:            c.engaged,
		Reason:             c.reason,
		ChangedAt:          c.changedAt,
		ControlConnected:   c.controlConnected,
		TelemetryConnected: c.telemetryConnected,
		ControlEstablished: c.controlEstablished,
	}
}

// GatedOutCount returns how many times Gate refused to invoke its
// action because the latch was engaged.
func (c *Core) GatedOutCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gatedOutCount
}

// emitLocked logs an estop_changed event, suppressed if the previous
// emission was within DebounceWindow. The flag itself has already
// changed synchronously by the time this runs; only the notification is
// debounced.
func (c *Core) emitLocked(now time.Time) {
	if !c.lastEmit.IsZero() && now.Sub(c.lastEmit) < DebounceWindow {
		return
	}
	c.lastEmit = now
	logging.L().Info("estop_changed", "engaged", c.engaged, "reason", c.reason)
}
