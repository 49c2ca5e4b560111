package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/config"
	"github.com/ropecrew/ropelink/internal/control"
	"github.com/ropecrew/ropelink/internal/controllink"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/telemetry"
	"github.com/ropecrew/ropelink/internal/telemetrylink"
	"github.com/ropecrew/ropelink/internal/videolink"
	"github.com/ropecrew/ropelink/internal/wire"
)

// pingInterval is the cadence at which Base probes RTT over the control
// channel. It informs, but never overrides, SafetyCore's own watchdog
// timing on the robot side (SPEC_FULL's ping/RTT supplement).
const pingInterval = 250 * time.Millisecond

// VideoSink consumes the base's reassembled JPEG frames. It is the
// out-of-scope video-republish collaborator named in spec §6.
type VideoSink interface {
	Accept([]byte)
}

// Base wires together the operator-station subsystems: ControlLink's
// client role, TelemetryLink's server role, and VideoLink's receiver
// role, plus a ping driver that measures control-channel RTT.
type Base struct {
	cfg   *config.Config
	clock clock.Clock

	controlCl    *controllink.Client
	telemetrySrv *telemetrylink.Server
	videoRecv    *videolink.Receiver

	video VideoSink

	pingSeq       atomic.Uint64
	pingStart     time.Time
	lastRTTMs     atomic.Int64
	lastTelemetry atomic.Pointer[telemetry.Frame]

	runCtx context.Context
	wg     sync.WaitGroup
}

// NewBase constructs a Base. video may be nil, in which case received
// video frames are simply discarded after reassembly.
func NewBase(cfg *config.Config, video VideoSink) (*Base, error) {
	clk := clock.System

	controlFramer := wire.NewFramer(cfg.PSK)
	controlAddr := net.JoinHostPort(cfg.PeerIP, fmt.Sprintf("%d", cfg.ControlPort))
	controlCl := controllink.NewClient(controlAddr, controlFramer, clk)

	telemetryFramer := wire.NewFramer(cfg.PSK)
	telemetryAddr := fmt.Sprintf(":%d", cfg.TelemetryPort)

	b := &Base{
		cfg:       cfg,
		clock:     clk,
		controlCl: controlCl,
		video:     video,
	}

	telemetrySrv := telemetrylink.NewServer(telemetryAddr, telemetryFramer, b.handleTelemetry)
	b.telemetrySrv = telemetrySrv

	videoAddr := fmt.Sprintf(":%d", cfg.VideoPort)
	b.videoRecv = videolink.NewReceiver(videoAddr, b.handleVideo)

	return b, nil
}

func (b *Base) handleTelemetry(frame telemetry.Frame) {
	b.lastTelemetry.Store(&frame)
	if frame.LastPong == nil {
		return
	}
	nowSeconds := time.Since(b.pingStart).Seconds()
	rtt := telemetry.ComputeRTTMs(frame.LastPong.PingTs, nowSeconds)
	b.lastRTTMs.Store(rtt)
	metrics.SetRTTMillis(rtt)
}

func (b *Base) handleVideo(frame []byte) {
	if b.video != nil {
		b.video.Accept(frame)
	}
}

// SendCommand forwards cmd to the robot over ControlLink, exposed for an
// operator-facing surface (physical E-STOP button, web console) that is
// out of scope for this module per spec §1.
func (b *Base) SendCommand(cmd control.Command) error {
	payload, err := control.Encode(cmd)
	if err != nil {
		return fmt.Errorf("coordinator: encode command: %w", err)
	}
	return b.controlCl.Send(payload)
}

// Run starts every supervised work unit and blocks until ctx is done.
func (b *Base) Run(ctx context.Context) error {
	b.runCtx = ctx
	b.pingStart = b.clock.Now()

	b.spawn(b.controlCl.Run)
	b.spawn(func(ctx context.Context) { _ = b.telemetrySrv.Serve(ctx) })
	b.spawn(func(ctx context.Context) { _ = b.videoRecv.Serve(ctx) })
	b.spawn(b.runPingDriver)
	b.spawn(b.runStatusLog)
	b.spawn(b.runDisconnectWatcher)

	<-ctx.Done()
	return b.shutdown()
}

func (b *Base) spawn(fn func(context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.runCtx)
	}()
}

func (b *Base) runPingDriver(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !b.controlCl.Established() {
				continue
			}
			seq := b.pingSeq.Add(1)
			ts := time.Since(b.pingStart).Seconds()
			cmd := control.Command{Kind: control.KindPing, Ts: ts, Seq: seq}
			if err := b.SendCommand(cmd); err != nil {
				logging.L().Warn("ping_send_failed", "error", err)
			}
		}
	}
}

// runDisconnectWatcher surfaces TelemetryLink receive failures to the
// log; per spec §9's resolution it never cascades into any robot-visible
// action on its own.
func (b *Base) runDisconnectWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.telemetrySrv.Disconnects():
			logging.L().Warn("telemetry_disconnect")
		}
	}
}

func (b *Base) runStatusLog(ctx context.Context) {
	t := time.NewTicker(statusLogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.logStatus()
		}
	}
}

func (b *Base) logStatus() {
	metrics.SetControlLinkState(int(b.controlCl.State()))
	metrics.SetTelemetryLinkState(int(boolState(b.telemetrySrv.Connected())))
	metrics.SetVideoLinkState(int(boolState(b.videoRecv.Connected())))

	frame := b.lastTelemetry.Load()
	fields := []any{
		"control_state", b.controlCl.State().String(),
		"telemetry_connected", b.telemetrySrv.Connected(),
		"video_connected", b.videoRecv.Connected(),
		"rtt_ms", b.lastRTTMs.Load(),
		"video_resyncs", b.videoRecv.Resyncs(),
	}
	if frame != nil {
		fields = append(fields,
			"engaged", frame.Estop.Engaged,
			"reason", frame.Estop.Reason,
			"control_age_ms", frame.ControlAgeMs,
		)
	}
	logging.L().Info("status", fields...)
}

func (b *Base) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	_ = b.telemetrySrv.Shutdown(ctx)
	_ = b.videoRecv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.L().Warn("shutdown_deadline_exceeded")
	}
	return nil
}
