// Package actuator implements the Actuator collaborator: stop_all() and
// apply(command). SIM_MODE swaps in Sim, a deterministic in-memory
// stand-in; otherwise Serial drives a real motor controller over a
// tarm/serial connection the way go-ampio-server's internal/serial
// drives its CAN-over-serial link — same dependency, different wire
// vocabulary.
package actuator

import (
	"fmt"
	"sync"

	"github.com/ropecrew/ropelink/internal/control"
)

// Actuator is the full collaborator interface: the core only ever calls
// StopAll directly (from safety.Core.Engage); Apply is invoked by
// CommandDispatcher from inside safety.Core.Gate's closure.
type Actuator interface {
	StopAll()
	Apply(cmd control.Command) error
}

// Sim is a deterministic, side-effect-free Actuator for SIM_MODE and
// for tests. It records every call so tests can assert exactly what was
// commanded.
type Sim struct {
	mu        sync.Mutex
	stopCalls int
	applied   []control.Command
}

// NewSim constructs an empty Sim.
func NewSim() *Sim { return &Sim{} }

func (s *Sim) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
}

func (s *Sim) Apply(cmd control.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, cmd)
	return nil
}

// StopCalls reports how many times StopAll has been invoked.
func (s *Sim) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Applied returns a copy of every command handed to Apply, in order.
func (s *Sim) Applied() []control.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]control.Command, len(s.applied))
	copy(out, s.applied)
	return out
}

// errUnsupportedCommand is returned by a concrete Actuator for a Kind it
// has no hardware mapping for (e.g. KindUnknown reaching Apply, which
// should never happen since CommandDispatcher filters it upstream).
func errUnsupportedCommand(cmd control.Command) error {
	return fmt.Errorf("actuator: no hardware mapping for command kind %q", cmd.Kind)
}
