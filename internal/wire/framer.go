package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Framer builds and verifies authenticated frames under a single PSK.
// Send-side and receive-side sequence state are independent (spec §3
// SequenceState) so a Framer can serve a full-duplex link without its two
// directions interfering with each other's monotonicity check.
//
// A Framer is safe for concurrent Build callers (the sequence increment
// and the emitted frame are atomic with respect to each other, per spec
// §4.1) and safe for concurrent ReadFrame callers, though in practice
// each link has exactly one reader goroutine.
type Framer struct {
	psk []byte

	sendMu  sync.Mutex
	nextSeq uint64

	recvMu       sync.Mutex
	lastAccepted uint64
	hasAccepted  bool
}

// NewFramer creates a Framer over psk. psk must be exactly PSKSize bytes;
// callers are expected to have validated this via DecodePSK at startup.
func NewFramer(psk []byte) *Framer {
	cp := make([]byte, len(psk))
	copy(cp, psk)
	return &Framer{psk: cp}
}

// Build constructs a wire-ready frame for payload, assigning it the next
// sequence number for this Framer's send side.
func (f *Framer) Build(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	seq := f.nextSeq
	f.nextSeq++

	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(out[4:12], seq)
	tag := f.tag(seq, payload)
	copy(out[12:12+tagFieldSize], tag)
	copy(out[HeaderSize:], payload)
	return out, nil
}

func (f *Framer) tag(seq uint64, payload []byte) []byte {
	mac := hmac.New(sha256.New, f.psk)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	mac.Write(seqBuf[:])
	mac.Write(payload)
	return mac.Sum(nil)
}

// ReadFrame reads exactly one frame from r, handling short reads and
// arbitrary TCP segmentation via io.ReadFull. It returns the verified
// sequence number and payload, or a classified error:
//
//   - the underlying io error (including io.EOF) if the stream ends
//     cleanly or uncleanly before a full frame arrives
//   - ErrFrameTooLarge if the wire length field exceeds MaxFrameSize
//   - ErrAuthFailure if the HMAC tag does not verify
//   - ErrReplay if seq is not strictly greater than the last accepted
//     sequence number on this Framer's receive side
//
// On ErrAuthFailure or ErrReplay, receive-side state is left unchanged.
// On success, last_accepted_seq advances to seq.
func (f *Framer) ReadFrame(r io.Reader) (uint64, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:lengthFieldSize]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	if _, err := io.ReadFull(r, hdr[lengthFieldSize:]); err != nil {
		return 0, nil, err
	}
	seq := binary.BigEndian.Uint64(hdr[4:12])
	tag := append([]byte(nil), hdr[12:12+tagFieldSize]...)

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}

	expected := f.tag(seq, payload)
	if !hmac.Equal(expected, tag) {
		return 0, nil, ErrAuthFailure
	}

	f.recvMu.Lock()
	defer f.recvMu.Unlock()
	if f.hasAccepted && seq <= f.lastAccepted {
		return 0, nil, ErrReplay
	}
	f.lastAccepted = seq
	f.hasAccepted = true
	return seq, payload, nil
}

// ResetReceive clears receive-side sequence state so a freshly
// (re)established connection may start its sequence numbering anywhere,
// including back at 0.
func (f *Framer) ResetReceive() {
	f.recvMu.Lock()
	f.hasAccepted = false
	f.lastAccepted = 0
	f.recvMu.Unlock()
}

// ResetSend clears send-side sequence state, restarting this Framer's
// outgoing numbering at 0. Called when a link establishes a fresh
// connection as the sender.
func (f *Framer) ResetSend() {
	f.sendMu.Lock()
	f.nextSeq = 0
	f.sendMu.Unlock()
}
