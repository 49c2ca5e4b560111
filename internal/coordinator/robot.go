// Package coordinator owns per-side lifecycle: constructing every
// subsystem in dependency order, supervising their goroutines, emitting
// a periodic status snapshot, and driving a bounded-deadline shutdown.
// It is the domain-adapted descendant of go-ampio-server's
// cmd/can-server/main.go, split into a reusable Robot and Base type so
// both node binaries can stay thin entrypoints.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/actuator"
	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/config"
	"github.com/ropecrew/ropelink/internal/controllink"
	"github.com/ropecrew/ropelink/internal/dispatch"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/sensors"
	"github.com/ropecrew/ropelink/internal/telemetry"
	"github.com/ropecrew/ropelink/internal/telemetrylink"
	"github.com/ropecrew/ropelink/internal/videolink"
	"github.com/ropecrew/ropelink/internal/wire"
)

// statusLogInterval satisfies spec's >=0.1Hz status emission requirement
// with headroom.
const statusLogInterval = 5 * time.Second

// watchdogTickInterval satisfies spec's >=1Hz SafetyCore.Tick requirement
// with headroom, on its own goroutine independent of any I/O loop.
const watchdogTickInterval = 200 * time.Millisecond

// shutdownDeadline bounds how long graceful Shutdown waits for
// supervised goroutines to exit before returning anyway, matching spec
// §5's "a hard exit happens after a drain deadline of ≤ 3 s."
const shutdownDeadline = 3 * time.Second

// VideoSource produces the robot's outgoing JPEG byte buffers with
// "acquire latest" semantics; old frames may be discarded. It is the
// out-of-scope video-capture collaborator named in spec §6, supplied by
// the embedding binary.
type VideoSource interface {
	// Frames returns a channel the coordinator drains until ctx is done.
	// The coordinator never blocks producing it; it is the source's
	// responsibility to keep the channel moving.
	Frames(ctx context.Context) <-chan []byte
}

// Robot wires together every robot-side subsystem: SafetyCore,
// CommandDispatcher, ControlLink.Server, TelemetryLink.Client,
// VideoLink.Sender, and TelemetryComposer.
type Robot struct {
	cfg   *config.Config
	clock clock.Clock

	actuator actuator.Actuator
	sensors  sensors.Sensors
	safety   *safety.Core
	pings    *telemetry.PingTracker
	disp     *dispatch.Dispatcher

	controlSrv  *controllink.Server
	telemetryCl *telemetrylink.Client
	videoSender *videolink.Sender
	composer    *telemetry.Composer

	video VideoSource

	runCtx context.Context
	wg     sync.WaitGroup
}

// NewRobot constructs a Robot in the order its constructors need:
// Clock → Actuator → SafetyCore → CommandDispatcher → Framers and
// {ControlLink, TelemetryLink, VideoLink} → TelemetryComposer, since the
// ControlLink server takes SafetyCore and the Dispatcher. video may be
// nil, in which case VideoLink.Sender runs with nothing to submit.
func NewRobot(cfg *config.Config, video VideoSource) (*Robot, error) {
	clk := clock.System

	var act actuator.Actuator
	if cfg.SimMode {
		act = actuator.NewSim()
	} else {
		serialAct, err := actuator.NewSerial(cfg.ActuatorDevice, cfg.ActuatorBaud)
		if err != nil {
			return nil, fmt.Errorf("coordinator: actuator init: %w", err)
		}
		act = serialAct
	}

	sc := safety.New(act, clk)
	sn := sensors.NewSim(4)
	pings := &telemetry.PingTracker{}

	disp := dispatch.New(sc, act, pings, clk)

	controlFramer := wire.NewFramer(cfg.PSK)
	controlAddr := fmt.Sprintf(":%d", cfg.ControlPort)
	controlSrv := controllink.NewServer(controlAddr, controlFramer, sc, disp)

	telemetryFramer := wire.NewFramer(cfg.PSK)
	telemetryAddr := net.JoinHostPort(cfg.PeerIP, fmt.Sprintf("%d", cfg.TelemetryPort))
	telemetryCl := telemetrylink.NewClient(telemetryAddr, telemetryFramer, clk)

	videoAddr := net.JoinHostPort(cfg.PeerIP, fmt.Sprintf("%d", cfg.VideoPort))
	videoSender := videolink.NewSender(videoAddr, clk)

	composer := telemetry.NewComposer(sn, sc, pings, clk, telemetryCl, telemetryCl, cfg.TelemetryInterval)

	return &Robot{
		cfg:         cfg,
		clock:       clk,
		actuator:    act,
		sensors:     sn,
		safety:      sc,
		pings:       pings,
		disp:        disp,
		controlSrv:  controlSrv,
		telemetryCl: telemetryCl,
		videoSender: videoSender,
		composer:    composer,
		video:       video,
	}, nil
}

// Safety exposes the SafetyCore instance for callers (tests, status
// reporting) that need it directly.
func (r *Robot) Safety() *safety.Core { return r.safety }

// Run starts every supervised work unit and blocks until ctx is done,
// then performs the bounded-deadline shutdown sequence spec §4.8 names:
// engage("shutdown") first, then drain links.
func (r *Robot) Run(ctx context.Context) error {
	r.runCtx = ctx
	r.spawn(func(ctx context.Context) { _ = r.controlSrv.Serve(ctx) })
	r.spawn(func(ctx context.Context) { r.telemetryCl.Run(ctx) })
	r.spawn(func(ctx context.Context) { r.videoSender.Run(ctx) })
	r.spawn(r.composer.Run)
	r.spawn(r.runWatchdog)
	r.spawn(r.runStatusLog)
	if r.video != nil {
		r.spawn(r.runVideoSubmit)
	}

	<-ctx.Done()
	return r.shutdown()
}

func (r *Robot) spawn(fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.runCtx)
	}()
}

func (r *Robot) runVideoSubmit(ctx context.Context) {
	frames := r.video.Frames(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = r.videoSender.Submit(frame)
		}
	}
}

func (r *Robot) runWatchdog(ctx context.Context) {
	t := time.NewTicker(watchdogTickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := r.clock.Now()
			r.safety.Tick(now, r.controlSrv.Connected(), r.telemetryCl.Established())
		}
	}
}

func (r *Robot) runStatusLog(ctx context.Context) {
	t := time.NewTicker(statusLogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.logStatus()
		}
	}
}

func (r *Robot) logStatus() {
	state := r.safety.Snapshot()
	controlAge := r.safety.ControlAge(r.clock.Now())
	metrics.SetEstopEngaged(state.Engaged)
	metrics.SetControlLinkState(int(boolState(r.controlSrv.Connected())))
	metrics.SetTelemetryLinkState(int(r.telemetryCl.State()))
	metrics.SetVideoLinkState(int(r.videoSender.State()))
	metrics.SetControlAgeMillis(controlAge.Milliseconds())

	logging.L().Info("status",
		"engaged", state.Engaged,
		"reason", state.Reason,
		"control_connected", r.controlSrv.Connected(),
		"telemetry_state", r.telemetryCl.State().String(),
		"video_state", r.videoSender.State().String(),
		"control_age_ms", controlAge.Milliseconds(),
		"gated_drops", r.disp.GatedDrops(),
		"video_frames_sent", r.videoSender.FramesSent(),
		"video_frames_dropped", r.videoSender.FramesDropped(),
	)
}

// boolState maps a binary connected/disconnected observation onto
// linkutil.ConnState's Disconnected/Established poles for the gauge,
// since ControlLink.Server exposes only a PeerSlot occupancy bit rather
// than a full state machine (it never dials out, so Connecting/Draining
// do not apply to it).
func boolState(connected bool) linkutil.ConnState {
	if connected {
		return linkutil.Established
	}
	return linkutil.Disconnected
}

func (r *Robot) shutdown() error {
	r.safety.Engage(safety.ReasonShutdown)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	_ = r.controlSrv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.L().Warn("shutdown_deadline_exceeded")
	}
	return nil
}
