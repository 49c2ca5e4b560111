package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PSK_HEX", "PEER_IP", "CONTROL_PORT", "VIDEO_PORT", "TELEMETRY_PORT",
		"VIDEO_HTTP_PORT", "LOG_LEVEL", "LOG_FORMAT", "TELEMETRY_INTERVAL_MS",
		"SIM_MODE", "METRICS_ADDR", "LOG_METRICS_INTERVAL_MS", "MDNS_ENABLE", "MDNS_NAME",
		"ACTUATOR_DEVICE", "ACTUATOR_BAUD",
	} {
		os.Unsetenv(k)
	}
}

const validPSKHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func TestLoadMissingPSK(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing PSK_HEX")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
}

func TestLoadShortPSK(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", "abcd")
	defer clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short PSK_HEX")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", validPSKHex)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ControlPort != DefaultControlPort {
		t.Errorf("ControlPort = %d, want %d", cfg.ControlPort, DefaultControlPort)
	}
	if cfg.VideoPort != DefaultVideoPort || cfg.TelemetryPort != DefaultTelemetryPort || cfg.VideoHTTPPort != DefaultVideoHTTPPort {
		t.Errorf("unexpected default ports: %+v", cfg)
	}
	if cfg.TelemetryInterval.Milliseconds() != defaultTelemetryIntervalMS {
		t.Errorf("TelemetryInterval = %v, want %dms", cfg.TelemetryInterval, defaultTelemetryIntervalMS)
	}
	if cfg.SimMode {
		t.Error("SimMode should default to false")
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("unexpected log defaults: %+v", cfg)
	}
}

func TestLoadTelemetryIntervalOutOfRange(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", validPSKHex)
	os.Setenv("TELEMETRY_INTERVAL_MS", "2000")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range TELEMETRY_INTERVAL_MS")
	}
}

func TestLoadTelemetryIntervalBoundaries(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	for _, ms := range []string{"50", "1000"} {
		os.Setenv("PSK_HEX", validPSKHex)
		os.Setenv("TELEMETRY_INTERVAL_MS", ms)
		if _, err := Load(); err != nil {
			t.Errorf("TELEMETRY_INTERVAL_MS=%s: unexpected error: %v", ms, err)
		}
	}
}

func TestLoadSimModeAndMDNS(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", validPSKHex)
	os.Setenv("SIM_MODE", "1")
	os.Setenv("MDNS_ENABLE", "true")
	os.Setenv("MDNS_NAME", "robot-1")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SimMode {
		t.Error("expected SimMode true")
	}
	if !cfg.MDNSEnable {
		t.Error("expected MDNSEnable true")
	}
	if cfg.MDNSName != "robot-1" {
		t.Errorf("MDNSName = %q, want robot-1", cfg.MDNSName)
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", validPSKHex)
	os.Setenv("LOG_LEVEL", "verbose")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestRequirePeer(t *testing.T) {
	clearEnv(t)
	os.Setenv("PSK_HEX", validPSKHex)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.RequirePeer(); err == nil {
		t.Fatal("expected RequirePeer error when PEER_IP unset")
	}

	cfg.PeerIP = "10.0.0.5"
	if err := cfg.RequirePeer(); err != nil {
		t.Fatalf("RequirePeer: %v", err)
	}
}
