// Package telemetry defines the robot-to-operator telemetry payload and
// the Composer that samples it at a fixed cadence. The shape mirrors
// control.Command: a small struct encoded as JSON inside an
// authenticated wire.Frame, the domain-specific replacement for
// go-ampio-server's fixed-width can.Frame payload.
package telemetry

import (
	"encoding/json"
	"fmt"
)

// EstopBlock mirrors safety.State's externally relevant fields.
type EstopBlock struct {
	Engaged bool   `json:"engaged"`
	Reason  string `json:"reason"`
}

// Pong echoes the most recent Ping the robot received, so the base can
// compute RTT as (now - PingTs) once it sees this frame.
type Pong struct {
	PingTs  float64 `json:"ping_ts"`
	PingSeq uint64  `json:"ping_seq"`
}

// IMUReading and BarometerReading duplicate sensors' shapes rather than
// importing that package, so telemetry's wire schema does not shift
// just because the sensor simulant's internals do.
type IMUReading struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
	GyroX  float64 `json:"gyro_x"`
	GyroY  float64 `json:"gyro_y"`
	GyroZ  float64 `json:"gyro_z"`
}

type BarometerReading struct {
	PressurePa   float64 `json:"pressure_pa"`
	TemperatureC float64 `json:"temperature_c"`
}

// Frame is the full decoded telemetry payload.
type Frame struct {
	BatteryVoltage   float64          `json:"battery_voltage"`
	Estop            EstopBlock       `json:"estop"`
	LastPong         *Pong            `json:"last_pong,omitempty"`
	ControlAgeMs     int64            `json:"control_age_ms"`
	RTTMs            int64            `json:"rtt_ms"`
	IMU              IMUReading       `json:"imu"`
	Barometer        BarometerReading `json:"barometer"`
	MotorCurrents    []float64        `json:"motor_currents"`
	ComposedAtUnixMs int64            `json:"composed_at_unix_ms"`
}

// Encode serializes f to its wire JSON form.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("telemetry: encode: %w", err)
	}
	return b, nil
}

// Decode parses a telemetry payload, used on the base side.
func Decode(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("telemetry: decode: %w", err)
	}
	return f, nil
}
