package telemetrylink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/telemetry"
	"github.com/ropecrew/ropelink/internal/wire"
)

const testPSK = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTelemetryLinkDeliversFrames(t *testing.T) {
	psk, _ := wire.DecodePSK(testPSK)
	serverFramer := wire.NewFramer(psk)
	clientFramer := wire.NewFramer(psk)

	var mu sync.Mutex
	var received []telemetry.Frame
	server := NewServer("127.0.0.1:0", serverFramer, func(f telemetry.Frame) {
		mu.Lock()
		received = append(received, f)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)
	waitUntil(t, time.Second, func() bool { return server.Addr() != "" })

	client := NewClient(server.Addr(), clientFramer, clock.NewFake(time.Unix(0, 0)))
	go client.Run(ctx)
	waitUntil(t, time.Second, client.Established)

	payload, _ := telemetry.Encode(telemetry.Frame{BatteryVoltage: 21.5})
	if err := client.Send(payload); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if received[0].BatteryVoltage != 21.5 {
		t.Fatalf("unexpected frame: %+v", received[0])
	}
}

func TestTelemetryLinkDisconnectNotifiesWithoutSafetyImpact(t *testing.T) {
	psk, _ := wire.DecodePSK(testPSK)
	serverFramer := wire.NewFramer(psk)
	clientFramer := wire.NewFramer(psk)

	server := NewServer("127.0.0.1:0", serverFramer, func(telemetry.Frame) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)
	waitUntil(t, time.Second, func() bool { return server.Addr() != "" })

	client := NewClient(server.Addr(), clientFramer, clock.NewFake(time.Unix(0, 0)))
	clientCtx, clientCancel := context.WithCancel(context.Background())
	go client.Run(clientCtx)
	waitUntil(t, time.Second, client.Established)

	clientCancel()

	select {
	case <-server.Disconnects():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a disconnect notification on the base side")
	}
}
