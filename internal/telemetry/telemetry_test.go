package telemetry

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		BatteryVoltage: 23.4,
		Estop:          EstopBlock{Engaged: true, Reason: "boot_default"},
		ControlAgeMs:   1234,
		RTTMs:          42,
		MotorCurrents:  []float64{0.1, 0.2},
	}
	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.BatteryVoltage != f.BatteryVoltage || got.Estop != f.Estop || got.ControlAgeMs != f.ControlAgeMs {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
	if len(got.MotorCurrents) != 2 {
		t.Fatalf("expected 2 motor currents, got %d", len(got.MotorCurrents))
	}
}

func TestDecodeInvalidPayload(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestPingTrackerSnapshotBeforeAnyPing(t *testing.T) {
	var pt PingTracker
	if _, ok := pt.Snapshot(); ok {
		t.Fatal("expected ok=false before any Record")
	}
}

func TestPingTrackerRecordAndSnapshot(t *testing.T) {
	var pt PingTracker
	pt.Record(12.5, 9)
	p, ok := pt.Snapshot()
	if !ok || p.PingTs != 12.5 || p.PingSeq != 9 {
		t.Fatalf("unexpected snapshot: %+v ok=%v", p, ok)
	}
}

func TestComputeRTTMs(t *testing.T) {
	if got := ComputeRTTMs(10.0, 10.05); got != 50 {
		t.Fatalf("expected 50ms, got %d", got)
	}
	if got := ComputeRTTMs(10.0, 9.9); got != 0 {
		t.Fatalf("expected clamping of negative rtt to 0, got %d", got)
	}
}
