// Package controllink implements the authenticated ControlLink: the
// robot runs the TCP server (Server), the base runs the TCP client
// (Client). Its accept-loop/receive-loop shape and its status-while-idle
// logging are grounded on go-ampio-server's internal/server.Server, with
// the hub.Hub fan-out replaced by a single-slot linkutil.PeerSlot and the
// CAN decode replaced by wire.Framer verification feeding
// dispatch.Dispatcher.
package controllink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ropecrew/ropelink/internal/connpolicy"
	"github.com/ropecrew/ropelink/internal/dispatch"
	"github.com/ropecrew/ropelink/internal/linkutil"
	"github.com/ropecrew/ropelink/internal/logging"
	"github.com/ropecrew/ropelink/internal/metrics"
	"github.com/ropecrew/ropelink/internal/netutil"
	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/wire"
)

const statusLogInterval = 10 * time.Second

// Server is the robot-side ControlLink endpoint.
type Server struct {
	addr       string
	framer     *wire.Framer
	safety     *safety.Core
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	slot linkutil.PeerSlot

	mu       sync.Mutex
	listener net.Listener

	acceptPoll time.Duration
}

// NewServer constructs a robot-side ControlLink server listening on
// addr.
func NewServer(addr string, framer *wire.Framer, sc *safety.Core, disp *dispatch.Dispatcher) *Server {
	return &Server{
		addr:       addr,
		framer:     framer,
		safety:     sc,
		dispatcher: disp,
		logger:     logging.L(),
		acceptPoll: connpolicy.ControlAcceptPoll,
	}
}

// Addr returns the listener's bound address, valid once Serve has
// started. Useful for tests that bind to ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Connected reports whether an operator is currently occupying the
// single accepted-connection slot. The watchdog driver polls this to
// answer SafetyCore.Tick's control_connected parameter.
func (s *Server) Connected() bool { return s.slot.Occupied() }

// Serve runs the accept loop until ctx is done. It never returns a
// non-nil error for a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("control_listen", "addr", ln.Addr().String())

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
		s.logger.Warn("control_keepalive_failed", "error", err)
	}
	peer := linkutil.NewPeer(conn)
	if prev := s.slot.Replace(peer); prev != nil {
		_ = prev.Conn.Close()
		prev.Close()
	}
	s.framer.ResetReceive()
	s.logger.Info("control_client_connected", "remote", conn.RemoteAddr().String())
	go s.receiveLoop(ctx, peer)
}

func (s *Server) receiveLoop(ctx context.Context, peer *linkutil.Peer) {
	lastStatus := time.Now()
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
			reason, fatal := classifyReadError(err)
			if !fatal {
				if time.Since(lastStatus) >= statusLogInterval {
					s.logger.Info("control_status", "idle", true)
					lastStatus = time.Now()
				}
				continue
			}
			s.logger.Warn("control_link_error", "reason", reason, "error", err)
			s.safety.Engage(reason)
			s.closePeer(peer)
			return
		}

		if err := s.dispatcher.HandleFrame(payload); err != nil {
			s.logger.Warn("control_decode_error", "error", err)
			s.safety.Engage(safety.ReasonDecodeError)
			s.closePeer(peer)
			return
		}
		metrics.IncControlReceived()
		if time.Since(lastStatus) >= statusLogInterval {
			s.logger.Info("control_status", "idle", false)
			lastStatus = time.Now()
		}
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
