package controllink

import (
	"errors"
	"net"

	"github.com/ropecrew/ropelink/internal/safety"
	"github.com/ropecrew/ropelink/internal/wire"
)

// Sentinel errors, mirroring the classification style of go-ampio-server's
// internal/server/errors.go (ErrListen/ErrAccept/ErrConnRead/...), applied
// here to the control channel instead of the CAN TCP feed.
var (
	ErrListen = errors.New("controllink: listen failed")
	ErrAccept = errors.New("controllink: accept failed")
	ErrDial   = errors.New("controllink: dial failed")
	ErrSend   = errors.New("controllink: send failed")
)

// classifyReadError maps a wire.ReadFrame error to the specific E-STOP
// reason spec §7 assigns it. fatal=false means the error should not engage
// E-STOP; the only such case is a read-deadline timeout, which is the
// receive loop's idle poll rather than a link failure. Every other read
// failure is fatal for actuation.
func classifyReadError(err error) (reason string, fatal bool) {
	switch {
	case errors.Is(err, wire.ErrFrameTooLarge):
		return safety.ReasonBufferOverflow, true
	case errors.Is(err, wire.ErrAuthFailure), errors.Is(err, wire.ErrReplay):
		return safety.ReasonAuthFailure, true
	case isNetTimeout(err):
		return "", false
	default:
		// io.EOF, net.ErrClosed, or any other read failure: the peer is
		// gone.
		return safety.ReasonDisconnect, true
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
