package videolink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/connpolicy"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/netutil"
	"github.com/ropecrew/ropelink/internal/queue"
)

// senderQueueDepth is deliberately tiny: the robot's VideoSource already
// hands over the latest captured frame, so at most two frames wait
// behind the one in flight.
const senderQueueDepth = 2

// Sender is the robot-side VideoLink endpoint: an unauthenticated TCP
// client that relays JPEG buffers handed to it via Submit. Sends never
// block the caller; a full queue or a dead connection simply drops the
// frame and increments FramesDropped.
type Sender struct {
	addr   string
	clock  clock.Clock
	logger *slog.Logger

	backoff *connpolicy.Backoff
	breaker *connpolicy.CircuitBreaker
	state   linkutil.StateBox

	mu   sync.Mutex
	conn net.Conn
	tx   *queue.AsyncTx[[]byte]

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

func NewSender(addr string, clk clock.Clock) *Sender {
	return &Sender{
		addr:    addr,
		clock:   clk,
		logger:  logging.L(),
		backoff: connpolicy.NewBackoff(),
		breaker: connpolicy.NewCircuitBreaker(clk),
	}
}

func (s *Sender) Established() bool { return s.state.Established() }

func (s *Sender) State() linkutil.ConnState { return s.state.Get() }

func (s *Sender) FramesSent() uint64    { return s.framesSent.Load() }
func (s *Sender) FramesDropped() uint64 { return s.framesDropped.Load() }

// Run drives the connect loop until ctx is done, the same backoff and
// circuit-breaker schedule as ControlLink and TelemetryLink use.
func (s *Sender) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if !s.breaker.Allow() {
			sleepCtx(ctx, 250*time.Millisecond)
			continue
		}
		s.state.Set(linkutil.Connecting)
		s.logger.Info("video_connecting", "addr", s.addr)
		conn, err := net.DialTimeout("tcp", s.addr, connpolicy.ConnectTimeout)
		if err != nil {
			s.breaker.RecordFailure()
			s.state.Set(linkutil.Disconnected)
			s.logger.Info("video_disconnected", "error", err)
			sleepCtx(ctx, s.backoff.Next())
			continue
		}
		if err := netutil.ConfigureKeepalive(conn); err != nil {
			s.logger.Warn("video_keepalive_failed", "error", err)
		}
		s.breaker.RecordSuccess()
		s.backoff.Reset()

		tx := queue.New(ctx, senderQueueDepth, func(frame []byte) error {
			return s.writeFrame(conn, frame)
		}, queue.Hooks[[]byte]{
			OnDrop: func() error {
				s.framesDropped.Add(1)
				metrics.IncVideoDropped()
				return nil
			},
			OnError: func(error) {
				s.framesDropped.Add(1)
				metrics.IncVideoDropped()
			},
		})

		s.mu.Lock()
		s.conn = conn
		s.tx = tx
		s.mu.Unlock()
		s.state.Set(linkutil.Established)
		s.logger.Info("video_connected", "addr", s.addr)

		for ctx.Err() == nil && s.state.Get() == linkutil.Established {
			sleepCtx(ctx, 200*time.Millisecond)
		}
		// A shutdown (ctx.Done) drains before the socket closes, per
		// spec §4.2's Established → Draining → Disconnected edge; a
		// write failure has already set Disconnected directly in
		// writeFrame and skips this intermediate state.
		if ctx.Err() != nil {
			s.state.Set(linkutil.Draining)
			s.logger.Info("video_draining")
		}
		tx.Close()
		s.mu.Lock()
		s.conn = nil
		s.tx = nil
		s.mu.Unlock()
		_ = conn.Close()
		if ctx.Err() != nil {
			s.state.Set(linkutil.Disconnected)
			s.logger.Info("video_disconnected")
			return
		}
	}
}

func (s *Sender) writeFrame(conn net.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(connpolicy.SendTimeout))
	if _, err := conn.Write(frame); err != nil {
		s.state.Set(linkutil.Disconnected)
		s.logger.Info("video_disconnected", "error", err)
		return err
	}
	s.framesSent.Add(1)
	metrics.IncVideoSent()
	return nil
}

// Submit hands frame to the send queue. It never blocks: if no
// connection is established, or the queue is full, the frame is dropped
// and FramesDropped is incremented.
func (s *Sender) Submit(frame []byte) error {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx == nil {
		s.framesDropped.Add(1)
		return fmt.Errorf("videolink: not connected")
	}
	return tx.Send(frame)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
