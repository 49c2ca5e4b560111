// Package config parses and range-validates the environment-variable
// surface spec §6 defines. Both node binaries call Load, which never
// calls os.Exit itself — a ConfigError is returned up to main, which
// decides how to log it and exit non-zero, the same discipline as the
// teacher's cmd/can-server/config.go applyEnvOverrides/validate split,
// narrowed to env-only since these are systemd-launched SBCs with no
// interactive flag surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ropecrew/ropelink/internal/wire"
)

// Default ports, per spec §6.
const (
	DefaultControlPort   = 5001
	DefaultVideoPort     = 5002
	DefaultTelemetryPort = 5003
	DefaultVideoHTTPPort = 5004
)

const defaultTelemetryIntervalMS = 100

// Config is the validated environment-variable surface shared by
// cmd/robot and cmd/base. Fields that are Base-only (VideoHTTPPort) are
// simply unused on the robot side rather than split into two types,
// mirroring how the teacher's single appConfig carries fields not every
// backend uses.
type Config struct {
	PSK []byte

	PeerIP string

	ControlPort   int
	VideoPort     int
	TelemetryPort int
	VideoHTTPPort int

	LogLevel  string
	LogFormat string

	TelemetryInterval time.Duration

	SimMode bool

	ActuatorDevice string
	ActuatorBaud   int

	MetricsAddr        string
	LogMetricsInterval time.Duration

	MDNSEnable bool
	MDNSName   string
}

// ConfigError reports a fatal, startup-only configuration problem. It is
// never an E-STOP cause — the process must refuse to start instead.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Load reads and validates the process environment. It is safe to call
// from both cmd/robot and cmd/base; role-specific requirements (e.g.
// PEER_IP being mandatory) are enforced by the caller, not here, since
// the two nodes differ only in which fields they require non-empty.
func Load() (*Config, error) {
	cfg := &Config{
		ControlPort:   envInt("CONTROL_PORT", DefaultControlPort),
		VideoPort:     envInt("VIDEO_PORT", DefaultVideoPort),
		TelemetryPort: envInt("TELEMETRY_PORT", DefaultTelemetryPort),
		VideoHTTPPort: envInt("VIDEO_HTTP_PORT", DefaultVideoHTTPPort),
		LogLevel:      envString("LOG_LEVEL", "info"),
		LogFormat:     envString("LOG_FORMAT", "json"),
		PeerIP:        envString("PEER_IP", ""),
		MetricsAddr:   envString("METRICS_ADDR", ""),
		MDNSEnable:    envBool("MDNS_ENABLE", false),
		MDNSName:      envString("MDNS_NAME", ""),
	}

	pskHex := os.Getenv("PSK_HEX")
	if pskHex == "" {
		return nil, configErrorf("PSK_HEX is required")
	}
	psk, err := wire.DecodePSK(pskHex)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	cfg.PSK = psk

	intervalMS := envInt("TELEMETRY_INTERVAL_MS", defaultTelemetryIntervalMS)
	if intervalMS < 50 || intervalMS > 1000 {
		return nil, configErrorf("TELEMETRY_INTERVAL_MS must be in [50, 1000], got %d", intervalMS)
	}
	cfg.TelemetryInterval = time.Duration(intervalMS) * time.Millisecond

	cfg.SimMode = os.Getenv("SIM_MODE") != ""
	cfg.ActuatorDevice = envString("ACTUATOR_DEVICE", "/dev/ttyUSB0")
	cfg.ActuatorBaud = envInt("ACTUATOR_BAUD", 115200)

	logMetricsMS := envInt("LOG_METRICS_INTERVAL_MS", 0)
	if logMetricsMS < 0 {
		return nil, configErrorf("LOG_METRICS_INTERVAL_MS must be >= 0, got %d", logMetricsMS)
	}
	cfg.LogMetricsInterval = time.Duration(logMetricsMS) * time.Millisecond

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, configErrorf("invalid LOG_LEVEL: %s", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, configErrorf("invalid LOG_FORMAT: %s", cfg.LogFormat)
	}
	if cfg.ActuatorBaud <= 0 {
		return nil, configErrorf("invalid ACTUATOR_BAUD: %d", cfg.ActuatorBaud)
	}
	for name, port := range map[string]int{
		"CONTROL_PORT": cfg.ControlPort, "VIDEO_PORT": cfg.VideoPort,
		"TELEMETRY_PORT": cfg.TelemetryPort, "VIDEO_HTTP_PORT": cfg.VideoHTTPPort,
	} {
		if port <= 0 || port > 65535 {
			return nil, configErrorf("invalid %s: %d", name, port)
		}
	}

	return cfg, nil
}

// RequirePeer returns a ConfigError if PeerIP is unset — the base always
// needs it to dial the robot's ControlLink; the robot needs it only when
// mDNS discovery (if enabled) fails to resolve one.
func (c *Config) RequirePeer() error {
	if strings.TrimSpace(c.PeerIP) == "" {
		return configErrorf("PEER_IP is required")
	}
	return nil
}

func envString(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
