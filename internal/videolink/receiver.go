package videolink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ropecrew/ropelink/internal/connpolicy"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/netutil"
)

var (
	ErrListen = errors.New("videolink: listen failed")
	ErrAccept = errors.New("videolink: accept failed")
)

const readChunk = 32 * 1024

// FrameHandler is called with each reassembled JPEG frame, start marker
// through end marker inclusive.
type FrameHandler func([]byte)

// Receiver is the base-side VideoLink endpoint: an unauthenticated TCP
// server that reassembles the robot's JPEG stream. It shares no state
// with SafetyCore — a broken or absent video feed never affects the
// E-STOP latch.
type Receiver struct {
	addr    string
	handler FrameHandler
	logger  *slog.Logger

	slot linkutil.PeerSlot

	mu       sync.Mutex
	listener net.Listener

	acceptPoll time.Duration

	resyncs uint64
}

func NewReceiver(addr string, handler FrameHandler) *Receiver {
	return &Receiver{
		addr:       addr,
		handler:    handler,
		logger:     logging.L(),
		acceptPoll: connpolicy.ControlAcceptPoll,
	}
}

func (r *Receiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Resyncs counts how many times the reassembly buffer overflowed and had
// to discard a runaway, unterminated frame.
func (r *Receiver) Resyncs() uint64 { return atomic.LoadUint64(&r.resyncs) }

// Connected reports whether a video-producing peer currently occupies
// the single accepted-connection slot.
func (r *Receiver) Connected() bool { return r.slot.Occupied() }

func (r *Receiver) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()
	r.logger.Info("video_listen", "addr", ln.Addr().String())

	go func() { <-ctx.Done(); _ = ln.Close() }()

	tl, _ := ln.(*net.TCPListener)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if tl != nil {
			_ = tl.SetDeadline(time.Now().Add(r.acceptPoll))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrAccept, err)
		}
		r.acceptConn(ctx, conn)
	}
}

func (r *Receiver) acceptConn(ctx context.Context, conn net.Conn) {
	if err := netutil.ConfigureKeepalive(conn); err != nil {
		r.logger.Warn("video_keepalive_failed", "error", err)
	}
	peer := linkutil.NewPeer(conn)
	if prev := r.slot.Replace(peer); prev != nil {
		_ = prev.Conn.Close()
		prev.Close()
	}
	r.logger.Info("video_client_connected", "remote", conn.RemoteAddr().String())
	go r.receiveLoop(ctx, peer)
}

func (r *Receiver) receiveLoop(ctx context.Context, peer *linkutil.Peer) {
	p := &parser{}
	buf := make([]byte, readChunk)
	for {
		select {
		case <-ctx.Done():
			r.closePeer(peer)
			return
		case <-peer.Closed:
			return
		default:
		}

		_ = peer.Conn.SetReadDeadline(time.Now().Add(connpolicy.ControlReceiveTimeout))
		n, err := peer.Conn.Read(buf)
		if n > 0 {
			before := p.resync
			p.feed(buf[:n], func(frame []byte) {
				if r.handler != nil {
					r.handler(frame)
				}
			})
			if p.resync != before {
				delta := p.resync - before
				atomic.AddUint64(&r.resyncs, delta)
				for i := uint64(0); i < delta; i++ {
					metrics.IncVideoResync()
				}
				r.logger.Warn("video_resync", "count", p.resync)
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.logger.Warn("video_link_error", "error", err)
			r.closePeer(peer)
			return
		}
	}
}

func (r *Receiver) closePeer(peer *linkutil.Peer) {
	_ = peer.Conn.Close()
	r.slot.Release(peer)
}

// Shutdown closes the listener and any active peer.
func (r *Receiver) Shutdown(context.Context) error {
	r.mu.Lock()
	ln := r.listener
	r.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if p := r.slot.Current(); p != nil {
		r.closePeer(p)
	}
	return nil
}
