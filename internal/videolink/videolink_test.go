package videolink

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
)

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

func TestSenderReceiverRelaysFrames(t *testing.T) {
	var mu sync.Mutex
	var got [][]byte
	receiver := NewReceiver("127.0.0.1:0", func(f []byte) {
		mu.Lock()
		got = append(got, append([]byte(nil), f...))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Serve(ctx)
	waitUntil(t, time.Second, func() bool { return receiver.Addr() != "" })

	sender := NewSender(receiver.Addr(), clock.NewFake(time.Unix(0, 0)))
	go sender.Run(ctx)
	waitUntil(t, time.Second, sender.Established)

	frame := jpeg("frame-one")
	if err := sender.Submit(frame); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got[0], frame) {
		t.Fatalf("relayed frame mismatch: got %x want %x", got[0], frame)
	}
	if sender.FramesSent() != 1 {
		t.Fatalf("expected FramesSent==1, got %d", sender.FramesSent())
	}
}

func TestSenderDropsWhenNotConnected(t *testing.T) {
	sender := NewSender("127.0.0.1:1", clock.NewFake(time.Unix(0, 0)))
	if err := sender.Submit(jpeg("x")); err == nil {
		t.Fatal("expected an error submitting with no connection")
	}
	if sender.FramesDropped() != 1 {
		t.Fatalf("expected FramesDropped==1, got %d", sender.FramesDropped())
	}
}
