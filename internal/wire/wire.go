// Package wire implements the authenticated, replay-proof frame format
// shared by ControlLink and TelemetryLink.
//
// On the wire, back to back on a TCP byte stream:
//
//	length(4, big-endian) || seq(8, big-endian) || tag(32, HMAC-SHA256) || payload
//
// length is the payload size in bytes and must not exceed MaxFrameSize.
// tag authenticates seq‖payload under the pre-shared key. seq must be
// strictly greater than the last accepted sequence number for the
// connection, or the frame is a replay.
//
// Framing here is grounded on the length-prefixed stream codec in
// go-ampio-server's internal/cnl package (4-byte header, io.ReadFull
// payload reads, DecodeN-style batch draining); the HMAC tag and
// monotonic-nonce replay check are grounded on xbslink-ng's
// internal/protocol Codec (HMAC-SHA256 over header‖payload, hmac.Equal
// constant-time comparison, reject non-increasing nonces).
package wire

import (
	"crypto/sha256"
	"errors"
)

const (
	// MaxFrameSize is the largest payload a single frame may carry.
	MaxFrameSize = 16384

	lengthFieldSize = 4
	seqFieldSize    = 8
	tagFieldSize    = sha256.Size // 32

	// HeaderSize is the number of wire bytes preceding the payload.
	HeaderSize = lengthFieldSize + seqFieldSize + tagFieldSize
)

// Sentinel errors classifying why a frame failed to verify. Callers use
// errors.Is against these to decide on an E-STOP reason (spec §7).
var (
	// ErrFrameTooLarge is returned by Build when the payload exceeds
	// MaxFrameSize, and by ReadFrame when the wire length field does.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrAuthFailure is returned when the HMAC tag does not verify.
	ErrAuthFailure = errors.New("wire: authentication failure")
	// ErrReplay is returned when seq is not strictly greater than the
	// last accepted sequence number for this Framer's receive side.
	ErrReplay = errors.New("wire: replayed sequence number")
)
