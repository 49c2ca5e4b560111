package actuator

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/ropecrew/ropelink/internal/control"
)

// Port is the minimal interface the Serial actuator needs from a serial
// line, matching go-ampio-server's internal/serial.Port so the same
// fake-port test technique applies here.
type Port interface {
	io.Writer
	io.Closer
}

// OpenPort dials a real tarm/serial port. Overridden in tests via
// openSerialPort.
func OpenPort(name string, baud int, writeTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: writeTimeout}
	return serial.OpenPort(cfg)
}

var openSerialPort = OpenPort

// Serial drives a motor controller relay over a line-oriented serial
// protocol. Each command is one ASCII line terminated by '\n'. StopAll
// has no error return to satisfy, so a write failure there is dropped
// on the floor rather than surfaced.
type Serial struct {
	mu   sync.Mutex
	port Port
}

// NewSerial opens device at baud and returns a ready Serial actuator.
func NewSerial(device string, baud int) (*Serial, error) {
	p, err := openSerialPort(device, baud, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("actuator: open serial %s: %w", device, err)
	}
	return &Serial{port: p}, nil
}

func (s *Serial) writeLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.port.Write([]byte(line + "\n"))
	return err
}

func (s *Serial) StopAll() {
	_ = s.writeLine("STOP")
}

func (s *Serial) Apply(cmd control.Command) error {
	switch cmd.Kind {
	case control.KindClampOpen:
		return s.writeLine("CLAMP_OPEN")
	case control.KindClampClose:
		return s.writeLine("CLAMP_CLOSE")
	case control.KindCameraSelect:
		return s.writeLine(fmt.Sprintf("CAMERA_SELECT %d", cmd.CameraID))
	case control.KindInputEvent:
		return s.writeLine(fmt.Sprintf("INPUT %s %d %f", cmd.InputKind, cmd.InputIndex, cmd.InputValue))
	case control.KindSetpoint:
		return s.writeLine(fmt.Sprintf("SETPOINT %s %f", cmd.SetpointName, cmd.SetpointValue))
	default:
		return errUnsupportedCommand(cmd)
	}
}

// Close releases the underlying serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
