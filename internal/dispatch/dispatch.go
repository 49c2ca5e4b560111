// Package dispatch implements CommandDispatcher: the robot-side glue
// between a verified control frame and SafetyCore/Actuator. It is the
// domain replacement for go-ampio-server's internal/server reader loop
// handing decoded can.Frame values to the Hub — here the "hub" is a
// single safety gate instead of a fan-out broadcast, and routing is a
// switch over a tagged command instead of a CAN ID filter.
package dispatch

import (
	"fmt"

	"github.com/ropecrew/ropelink/internal/actuator"
	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/control"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/telemetry"
)

// Dispatcher routes verified control frames to SafetyCore and Actuator.
type Dispatcher struct {
	safety   *safety.Core
	actuator actuator.Actuator
	pings    *telemetry.PingTracker
	clock    clock.Clock

	gatedDrops uint64
}

// New constructs a Dispatcher.
func New(sc *safety.Core, act actuator.Actuator, pings *telemetry.PingTracker, clk clock.Clock) *Dispatcher {
	return &Dispatcher{safety: sc, actuator: act, pings: pings, clock: clk}
}

// HandleFrame is called once per successfully authenticated, non-replay
// control frame's payload. It always calls SafetyCore.NoteControl before
// attempting to decode, since verification alone establishes link
// freshness regardless of whether the payload itself turns out to be
// well formed. A decode error is returned to the caller, which is
// responsible for engaging E-STOP with reason "decode_error" and
// closing the connection — that is a link-level concern, not this
// package's.
func (d *Dispatcher) HandleFrame(payload []byte) error {
	now := d.clock.Now()
	d.safety.NoteControl(now)

	cmd, err := control.Decode(payload)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	switch cmd.Kind {
	case control.KindEmergencyStop:
		d.handleEmergencyStop(cmd)
	case control.KindPing:
		if d.pings != nil {
			d.pings.Record(cmd.Ts, cmd.Seq)
		}
	case control.KindUnknown:
		logging.L().Info("unknown_command", "raw_type", cmd.RawType)
	default:
		d.gateApply(cmd)
	}
	return nil
}

func (d *Dispatcher) handleEmergencyStop(cmd control.Command) {
	if cmd.Engage {
		reason := cmd.Reason
		if reason == "" {
			reason = safety.ReasonOperatorEngage
		}
		d.safety.Engage(reason)
		return
	}

	// An explicit clear command arriving over an authenticated control
	// frame is by construction fresh: control_connected is true and
	// control_age is zero.
	rej := d.safety.Clear(cmd.Confirm, true, 0)
	if rej == safety.RejectNone {
		logging.L().Info("clear_accepted")
		return
	}
	logging.L().Warn("clear_rejected", "reason", string(rej))
}

func (d *Dispatcher) gateApply(cmd control.Command) {
	invoked, err := d.safety.Gate(func() error {
		return d.actuator.Apply(cmd)
	})
	if !invoked {
		d.gatedDrops++
		metrics.IncGatedDrop()
		return
	}
	if err != nil {
		logging.L().Warn("actuator_error", "kind", string(cmd.Kind), "error", err)
	}
}

// GatedDrops reports how many non-EmergencyStop commands were silently
// discarded because the latch was engaged at the time.
func (d *Dispatcher) GatedDrops() uint64 { return d.gatedDrops }
