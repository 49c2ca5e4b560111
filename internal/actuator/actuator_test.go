package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/control"
)

func TestSimRecordsStopAndApply(t *testing.T) {
	s := NewSim()
	s.StopAll()
	s.StopAll()
	if s.StopCalls() != 2 {
		t.Fatalf("expected 2 stop calls, got %d", s.StopCalls())
	}

	cmd := control.Command{Kind: control.KindClampOpen}
	if err := s.Apply(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applied := s.Applied()
	if len(applied) != 1 || applied[0].Kind != control.KindClampOpen {
		t.Fatalf("unexpected applied log: %+v", applied)
	}
}

type fakePort struct {
	writes [][]byte
	closed bool
	failOn string
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.failOn != "" && string(p) == f.failOn {
		return 0, errors.New("write failed")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func withFakePort(t *testing.T, fp *fakePort) *Serial {
	t.Helper()
	prev := openSerialPort
	openSerialPort = func(name string, baud int, timeout time.Duration) (Port, error) {
		return fp, nil
	}
	t.Cleanup(func() { openSerialPort = prev })
	s, err := NewSerial("/dev/ttyFAKE", 115200)
	if err != nil {
		t.Fatalf("unexpected error opening fake serial: %v", err)
	}
	return s
}

func TestSerialStopAllWritesStopLine(t *testing.T) {
	fp := &fakePort{}
	s := withFakePort(t, fp)
	s.StopAll()
	if len(fp.writes) != 1 || string(fp.writes[0]) != "STOP\n" {
		t.Fatalf("expected a single STOP line, got %q", fp.writes)
	}
}

func TestSerialApplyClampCommands(t *testing.T) {
	fp := &fakePort{}
	s := withFakePort(t, fp)
	if err := s.Apply(control.Command{Kind: control.KindClampClose}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.writes) != 1 || string(fp.writes[0]) != "CLAMP_CLOSE\n" {
		t.Fatalf("unexpected write: %q", fp.writes)
	}
}

func TestSerialApplyUnsupportedKindErrors(t *testing.T) {
	fp := &fakePort{}
	s := withFakePort(t, fp)
	err := s.Apply(control.Command{Kind: control.KindUnknown})
	if err == nil {
		t.Fatal("expected an error for an unsupported command kind")
	}
}

func TestSerialClose(t *testing.T) {
	fp := &fakePort{}
	s := withFakePort(t, fp)
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fp.closed {
		t.Fatal("expected underlying port to be closed")
	}
}
