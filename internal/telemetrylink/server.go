// Package telemetrylink implements the authenticated TelemetryLink: the
// base runs the TCP server (Server), the robot runs the TCP client
// (Client) — the mirror image of controllink. A receive failure on the
// base only surfaces to its Coordinator; it never mutates robot safety
// state, since the base has no authority over SafetyCore.
package telemetrylink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/connpolicy"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/netutil"
	"github.com/ropecrew/ropelink/internal/telemetry"
	"github.com/ropecrew/ropelink/internal/wire"
)

var (
	ErrListen = errors.New("telemetrylink: listen failed")
	ErrAccept = errors.New("telemetrylink: accept failed")
)

// FrameHandler is called with each decoded telemetry payload.
type FrameHandler func(telemetry.Frame)

// Server is the base-side TelemetryLink endpoint.
type Server struct {
	addr    string
	framer  *wire.Framer
	handler FrameHandler
	logger  *slog.Logger

	slot linkutil.PeerSlot

	mu       sync.Mutex
	listener net.Listener

	acceptPoll time.Duration

	disconnects chan struct{}
}

// NewServer constructs a base-side TelemetryLink server.
func NewServer(addr string, framer *wire.Framer, handler FrameHandler) *Server {
	return &Server{
		addr:        addr,
		framer:      framer,
		handler:     handler,
		logger:      logging.L(),
		acceptPoll:  connpolicy.ControlAcceptPoll,
		disconnects: make(chan struct{}, 1),
	}
}

// Addr returns the bound listener address once Serve has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Disconnects reports receive failures for the Coordinator's health
// view; it never alters any safety state.
func (s *Server) Disconnects() <-chan struct{} { return s.disconnects }

// Connected reports whether a telemetry-producing peer currently
// occupies the single accepted-connection slot.
func (s *Server) Connected() bool { return s.slot.Occupied() }

func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("telemetry_listen", "addr", ln.Addr().String())

	go func() { <-ctx.Done(); _ = ln.Close() }()

	tl, _ := ln.(*net.TCPListener)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if tl != nil {
			_ = tl.SetDeadline(time.Now().Add(s.acceptPoll))
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
		s.acceptConn(ctx, conn)
	}
}

func (s *Server) acceptConn(ctx context.Context, conn net.Conn) {
	if err := netutil.ConfigureKeepalive(conn); err != nil {
		s.logger.Warn("telemetry_keepalive_failed", "error", err)
	}
	peer := linkutil.NewPeer(conn)
	if prev := s.slot.Replace(peer); prev != nil {
		_ = prev.Conn.Close()
		prev.Close()
	}
	s.framer.ResetReceive()
	s.logger.Info("telemetry_client_connected", "remote", conn.RemoteAddr().String())
	go s.receiveLoop(ctx, peer)
}

func (s *Server) receiveLoop(ctx context.Context, peer *linkutil.Peer) {
	for {
		select {
		case <-ctx.Done():
			s.closePeer(peer)
			return
		case <-peer.Closed:
			return
		default:
		}

		_ = peer.Conn.SetReadDeadline(time.Now().Add(connpolicy.ControlReceiveTimeout))
		_, payload, err := s.framer.ReadFrame(peer.Conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.logger.Warn("telemetry_link_error", "error", err)
			s.notifyDisconnect()
			s.closePeer(peer)
			return
		}

		metrics.IncTelemetryReceived()
		frame, err := telemetry.Decode(payload)
		if err != nil {
			s.logger.Warn("telemetry_decode_error", "error", err)
			continue
		}
		if s.handler != nil {
			s.handler(frame)
		}
	}
}

func (s *Server) notifyDisconnect() {
	select {
	case s.disconnects <- struct{}{}:
	default:
	}
}

func (s *Server) closePeer(peer *linkutil.Peer) {
	_ = peer.Conn.Close()
	s.slot.Release(peer)
}

// Shutdown closes the listener and any active peer.
func (s *Server) Shutdown(context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if p := s.slot.Current(); p != nil {
		s.closePeer(p)
	}
	return nil
}
