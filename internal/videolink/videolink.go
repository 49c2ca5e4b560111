// Package videolink implements the unauthenticated, best-effort JPEG
// relay: the robot is the sender (Sender, a TCP client), the base is the
// receiver (Receiver, a TCP server). Neither side shares a mutual
// exclusion primitive with SafetyCore, and back-pressure is absorbed
// purely by dropping frames — the non-blocking discipline is the same
// one queue.AsyncTx gives VideoLink's send path, generalized from
// go-ampio-server's internal/transport.AsyncTx.
package videolink

// MaxVideoBuffer bounds the receiver's reassembly buffer before it must
// resync to the next JPEG start-of-image marker.
const MaxVideoBuffer = 262144

// soi and eoi are the standard JPEG delimiters this relay scans for; no
// other framing header exists on the wire.
var soi = []byte{0xFF, 0xD8}
var eoi = []byte{0xFF, 0xD9}
