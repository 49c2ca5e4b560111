package controllink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/clock"
	"github.com/ropecrew/ropelink/internal/connpolicy"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/netutil"
	"github.com/ropecrew/ropelink/internal/wire"
)

// Client is the base-side ControlLink endpoint: it dials out to the
// robot and sends authenticated command frames.
type Client struct {
	addr   string
	framer *wire.Framer
	clock  clock.Clock
	logger *slog.Logger

	backoff *connpolicy.Backoff
	breaker *connpolicy.CircuitBreaker
	state   linkutil.StateBox

	mu   sync.Mutex
	conn net.Conn
}

// NewClient constructs a base-side ControlLink client that will dial
// addr.
func NewClient(addr string, framer *wire.Framer, clk clock.Clock) *Client {
	return &Client{
		addr:    addr,
		framer:  framer,
		clock:   clk,
		logger:  logging.L(),
		backoff: connpolicy.NewBackoff(),
		breaker: connpolicy.NewCircuitBreaker(clk),
	}
}

// State returns the current connection lifecycle state.
func (c *Client) State() linkutil.ConnState { return c.state.Get() }

// Established reports whether the client currently holds a connected
// session, satisfying telemetry.LinkState and similar consumers.
func (c *Client) Established() bool { return c.state.Established() }

// Run drives the connect loop until ctx is done.
func (c *Client) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if !c.breaker.Allow() {
			sleepCtx(ctx, 250*time.Millisecond)
			continue
		}
		c.state.Set(linkutil.Connecting)
		c.logger.Info("control_connecting", "addr", c.addr)
		conn, err := net.DialTimeout("tcp", c.addr, connpolicy.ConnectTimeout)
		if err != nil {
			c.breaker.RecordFailure()
			c.state.Set(linkutil.Disconnected)
			c.logger.Info("control_disconnected", "error", err)
			sleepCtx(ctx, c.backoff.Next())
			continue
		}
		if err := netutil.ConfigureKeepalive(conn); err != nil {
			c.logger.Warn("control_keepalive_failed", "error", err)
		}
		c.breaker.RecordSuccess()
		c.backoff.Reset()
		c.framer.ResetSend()

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.state.Set(linkutil.Established)
		c.logger.Info("control_connected", "addr", c.addr)

		// Send failures set state back to Disconnected from another
		// goroutine; poll for that here since the control socket is
		// send-only and has no read loop of its own to notice EOF.
		for ctx.Err() == nil && c.state.Get() == linkutil.Established {
			sleepCtx(ctx, 200*time.Millisecond)
		}
		if ctx.Err() != nil {
			c.drain()
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// drain marks the link Draining before the socket actually closes, per
// spec §4.2's Established → Draining → Disconnected shutdown edge, then
// falls through to the ordinary disconnect.
func (c *Client) drain() {
	c.state.Set(linkutil.Draining)
	c.logger.Info("control_draining")
	c.disconnect()
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.state.Set(linkutil.Disconnected)
	c.logger.Info("control_disconnected")
}

// Send builds and writes an authenticated frame carrying payload. Any
// failure transitions the client to Disconnected and closes the socket;
// Run notices on its next poll and redials.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrSend)
	}
	frame, err := c.framer.Build(payload)
	if err != nil {
		c.disconnect()
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(connpolicy.SendTimeout))
	if _, err := conn.Write(frame); err != nil {
		c.disconnect()
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	metrics.IncControlSent()
	return nil
}
