// Command robot is the bridge's robot-side node: it runs ControlLink's
// server role, TelemetryLink's client role, VideoLink's sender role, and
// the SafetyCore latch that forces actuation to stop whenever
// communication, authenticity, or timeliness is in doubt.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ropecrew/ropelink/internal/config"
	"github.com/ropecrew/ropelink/internal/coordinator"
	"github.com/ropecrew/ropelink/internal/discovery"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

const discoveryBrowseTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(2)
	}

	l := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr).With("node", "robot")
	logging.Set(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PeerIP == "" && cfg.MDNSEnable {
		peer, derr := discovery.Browse(ctx, discoveryBrowseTimeout)
		if derr != nil {
			l.Warn("mdns_discovery_failed", "error", derr)
		} else {
			l.Info("mdns_discovered_peer", "ip", peer.IP)
			cfg.PeerIP = peer.IP
			if peer.TelemetryPort != 0 {
				cfg.TelemetryPort = peer.TelemetryPort
			}
			if peer.VideoPort != 0 {
				cfg.VideoPort = peer.VideoPort
			}
		}
	}
	if err := cfg.RequirePeer(); err != nil {
		l.Error("configuration_error", "error", err)
		os.Exit(2)
	}

	robot, err := coordinator.NewRobot(cfg, nil)
	if err != nil {
		l.Error("robot_init_error", "error", err)
		os.Exit(1)
	}

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.MetricsAddr != "" {
		metrics.InitBuildInfo("robot", version)
		srv := metrics.StartHTTP(cfg.MetricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()

	if err := robot.Run(ctx); err != nil {
		l.Error("robot_run_error", "error", err)
		os.Exit(1)
	}
}
