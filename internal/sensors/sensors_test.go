package sensors

import "testing"

func TestSimSampleNeverErrors(t *testing.T) {
	s := NewSim(4)
	for i := 0; i < 10; i++ {
		r, err := s.Sample()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.MotorCurrents) != 4 {
			t.Fatalf("expected 4 motor current channels, got %d", len(r.MotorCurrents))
		}
		if r.BatteryVoltage <= 0 {
			t.Fatalf("expected a positive battery voltage, got %v", r.BatteryVoltage)
		}
	}
}

func TestSimSampleVaries(t *testing.T) {
	s := NewSim(1)
	first, _ := s.Sample()
	second, _ := s.Sample()
	if first.IMU.AccelX == second.IMU.AccelX && first.Barometer.PressurePa == second.Barometer.PressurePa {
		t.Fatal("expected successive samples to differ")
	}
}
