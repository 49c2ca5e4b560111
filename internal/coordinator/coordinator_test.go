package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/config"
	"github.com/ropecrew/ropelink/internal/wire"
)

const testPSKHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testPSK(t *testing.T) []byte {
	t.Helper()
	psk, err := wire.DecodePSK(testPSKHex)
	if err != nil {
		t.Fatalf("unexpected psk error: %v", err)
	}
	return psk
}

func runAndCancel(t *testing.T, run func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("Run did not return within the shutdown deadline")
	}
}

func TestRobotBootsEstopEngaged(t *testing.T) {
	cfg := &config.Config{
		PSK:               testPSK(t),
		PeerIP:            "127.0.0.1",
		ControlPort:       0,
		TelemetryPort:     1,
		VideoPort:         1,
		TelemetryInterval: 50 * time.Millisecond,
		SimMode:           true,
	}

	robot, err := NewRobot(cfg, nil)
	if err != nil {
		t.Fatalf("NewRobot: %v", err)
	}
	if !robot.Safety().Snapshot().Engaged {
		t.Fatal("expected SafetyCore to boot engaged (boot_default)")
	}

	runAndCancel(t, robot.Run)
}

func TestBaseRunsAndShutsDown(t *testing.T) {
	cfg := &config.Config{
		PSK:           testPSK(t),
		PeerIP:        "127.0.0.1",
		ControlPort:   1,
		TelemetryPort: 0,
		VideoPort:     0,
	}

	base, err := NewBase(cfg, nil)
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	runAndCancel(t, base.Run)
}
