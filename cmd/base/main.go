// Command base is the bridge's operator-station node: it runs
// ControlLink's client role (dialing the robot), TelemetryLink's server
// role, and VideoLink's receiver role, and surfaces a structured health
// snapshot of both.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

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

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(2)
	}
	if err := cfg.RequirePeer(); err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(2)
	}

	l := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr).With("node", "base")
	logging.Set(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MDNSEnable {
		cleanup, derr := discovery.Advertise(ctx, cfg.MDNSName, cfg.ControlPort, cfg.TelemetryPort, cfg.VideoPort)
		if derr != nil {
			l.Warn("mdns_advertise_failed", "error", derr)
		} else {
			l.Info("mdns_advertising", "service", discovery.ServiceType)
			defer cleanup()
		}
	}

	base, err := coordinator.NewBase(cfg, nil)
	if err != nil {
		l.Error("base_init_error", "error", err)
		os.Exit(1)
	}

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.MetricsAddr != "" {
		metrics.InitBuildInfo("base", version)
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

	if err := base.Run(ctx); err != nil {
		l.Error("base_run_error", "error", err)
		os.Exit(1)
	}
}
