package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/sensors"
)

type fakeSensors struct{ n atomic.Int64 }

func (f *fakeSensors) Sample() (sensors.Reading, error) {
	f.n.Add(1)
	return sensors.Reading{BatteryVoltage: 22.0, MotorCurrents: []float64{0.3}}, nil
}

type fixedLinkState struct{ established atomic.Bool }

func (f *fixedLinkState) Established() bool { return f.established.Load() }

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (r *recordingSender) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, payload)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type noopActuator struct{}

func (noopActuator) StopAll() {}

func TestComposerSkipsWhileNotEstablished(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	sc := safety.New(noopActuator{}, fc)
	link := &fixedLinkState{}
	sender := &recordingSender{}
	c := NewComposer(&fakeSensors{}, sc, &PingTracker{}, fc, link, sender, time.Millisecond)

	c.tick()
	c.tick()
	if sender.count() != 0 {
		t.Fatalf("expected no sends while link not established, got %d", sender.count())
	}
}

func TestComposerSendsWhileEstablished(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	sc := safety.New(noopActuator{}, fc)
	link := &fixedLinkState{}
	link.established.Store(true)
	sender := &recordingSender{}
	pings := &PingTracker{}
	pings.Record(1.0, 5)
	c := NewComposer(&fakeSensors{}, sc, pings, fc, link, sender, time.Millisecond)

	c.tick()
	if sender.count() != 1 {
		t.Fatalf("expected exactly one send, got %d", sender.count())
	}

	frame, err := Decode(sender.sent[0])
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if frame.LastPong == nil || frame.LastPong.PingSeq != 5 {
		t.Fatalf("expected last pong to be included, got %+v", frame.LastPong)
	}
	if frame.BatteryVoltage != 22.0 {
		t.Fatalf("expected sampled battery voltage, got %v", frame.BatteryVoltage)
	}
}

func TestComposerRunTicksAndStopsOnContextCancel(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	sc := safety.New(noopActuator{}, fc)
	link := &fixedLinkState{}
	link.established.Store(true)
	sender := &recordingSender{}
	c := NewComposer(&fakeSensors{}, sc, &PingTracker{}, fc, link, sender, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
	if sender.count() == 0 {
		t.Fatal("expected at least one tick to have fired")
	}
}
