package telemetry

import (
	"context"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/sensors"
)

// Sender transmits one composed, encoded telemetry frame. It is
// satisfied by telemetrylink.Client.Send.
type Sender interface {
	Send(payload []byte) error
}

// LinkState reports whether the telemetry link is currently Established.
// Composer discards samples rather than backlogging them while the link
// is down, so there is never a burst of stale frames once it reconnects.
type LinkState interface {
	Established() bool
}

// Composer samples Sensors and SafetyCore at a fixed cadence, builds a
// Frame, and hands it to Sender. It never engages or touches
// SafetyCore's latch — it only reads a Snapshot, same as any other
// status consumer.
type Composer struct {
	sensors  sensors.Sensors
	safety   *safety.Core
	pings    *PingTracker
	clock    clock.Clock
	link     LinkState
	sender   Sender
	interval time.Duration

	onSample func(Frame) // test hook; nil in production
}

// NewComposer constructs a Composer. interval should be
// TELEMETRY_INTERVAL_MS converted to a Duration (50ms-1000ms, validated
// by config).
func NewComposer(sn sensors.Sensors, sc *safety.Core, pings *PingTracker, clk clock.Clock, link LinkState, sender Sender, interval time.Duration) *Composer {
	return &Composer{
		sensors:  sn,
		safety:   sc,
		pings:    pings,
		clock:    clk,
		link:     link,
		sender:   sender,
		interval: interval,
	}
}

// Run ticks at the configured interval until ctx is done. Each tick that
// finds the link not Established is skipped entirely — no sample is
// taken and nothing is queued, so a long disconnection never produces a
// backlog to flush on reconnect.
func (c *Composer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Composer) tick() {
	if !c.link.Established() {
		return
	}

	reading, err := c.sensors.Sample()
	if err != nil {
		return
	}

	now := c.clock.Now()
	state := c.safety.Snapshot()

	frame := Frame{
		BatteryVoltage: reading.BatteryVoltage,
		Estop: EstopBlock{
			Engaged: state.Engaged,
			Reason:  state.Reason,
		},
		ControlAgeMs: c.safety.ControlAge(now).Milliseconds(),
		RTTMs:        0,
		IMU: IMUReading{
			AccelX: reading.IMU.AccelX,
			AccelY: reading.IMU.AccelY,
			AccelZ: reading.IMU.AccelZ,
			GyroX:  reading.IMU.GyroX,
			GyroY:  reading.IMU.GyroY,
			GyroZ:  reading.IMU.GyroZ,
		},
		Barometer: BarometerReading{
			PressurePa:   reading.Barometer.PressurePa,
			TemperatureC: reading.Barometer.TemperatureC,
		},
		MotorCurrents:    reading.MotorCurrents,
		ComposedAtUnixMs: now.UnixMilli(),
	}
	if pong, ok := c.pings.Snapshot(); ok {
		frame.LastPong = &pong
	}

	if c.onSample != nil {
		c.onSample(frame)
	}

	payload, err := Encode(frame)
	if err != nil {
		return
	}
	_ = c.sender.Send(payload)
}

// ComputeRTTMs is used by the base side after decoding a Frame whose
// LastPong matches a Ping it sent at pingTs (its own monotonic clock, in
// seconds) to compute the round trip in milliseconds against nowSeconds.
func ComputeRTTMs(pingTs, nowSeconds float64) int64 {
	d := nowSeconds - pingTs
	if d < 0 {
		d = 0
	}
	return int64(d * 1000)
}
