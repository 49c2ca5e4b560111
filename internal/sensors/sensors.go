// Package sensors implements the Sensors collaborator: sample(),
// required to be non-blocking and bounded in duration. Sim is the
// SIM_MODE stand-in; a real implementation would read an IMU/barometer
// and motor current shunts, but that hardware access is out of scope
// here the same way go-ampio-server leaves the physical CAN transceiver
// to internal/socketcan and only standardizes the Frame shape.
package sensors

import (
	"math"
	"sync/atomic"
	"time"
)

// IMUReading is a single accelerometer/gyroscope sample.
type IMUReading struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// BarometerReading is a single pressure/temperature sample.
type BarometerReading struct {
	PressurePa   float64
	TemperatureC float64
}

// Reading is one bounded, non-blocking sample of all onboard sensors.
type Reading struct {
	BatteryVoltage float64
	IMU            IMUReading
	Barometer      BarometerReading
	MotorCurrents  []float64
	SampledAt      time.Time
}

// Sensors is the collaborator interface telemetry.Composer consumes.
type Sensors interface {
	Sample() (Reading, error)
}

// Sim produces a deterministic, mildly oscillating Reading so telemetry
// tests and demos have something more interesting than flat zeros
// without depending on wall-clock jitter. It never errors and never
// blocks.
type Sim struct {
	motorCount int
	tick       atomic.Int64
}

// NewSim constructs a Sim reporting motorCount motor current channels.
func NewSim(motorCount int) *Sim {
	return &Sim{motorCount: motorCount}
}

func (s *Sim) Sample() (Reading, error) {
	n := s.tick.Add(1)
	phase := float64(n) * 0.1

	currents := make([]float64, s.motorCount)
	for i := range currents {
		currents[i] = 0.5 + 0.1*math.Sin(phase+float64(i))
	}

	return Reading{
		BatteryVoltage: 24.0 - 0.01*math.Mod(float64(n), 50),
		IMU: IMUReading{
			AccelX: 0.01 * math.Sin(phase),
			AccelY: 0.01 * math.Cos(phase),
			AccelZ: 9.81,
			GyroX:  0.001 * math.Sin(phase/2),
			GyroY:  0,
			GyroZ:  0,
		},
		Barometer: BarometerReading{
			PressurePa:   101325 + 5*math.Sin(phase/5),
			TemperatureC: 22 + 0.1*math.Sin(phase/10),
		},
		MotorCurrents: currents,
		SampledAt:     time.Now(),
	}, nil
}
