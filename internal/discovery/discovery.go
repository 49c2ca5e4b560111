// Package discovery wraps grandcat/zeroconf for the optional mDNS
// convenience layer named in SPEC_FULL: the Base advertises its
// control/telemetry/video ports, and the Robot may passively browse for
// it to populate a default peer address when PEER_IP is unset. It is
// directly adapted from the teacher's cmd/can-server/mdns.go
// (zeroconf.Register, a context-scoped shutdown goroutine) generalized
// from a single CAN-server port to the bridge's three ports carried as
// TXT metadata, plus a Browse side the teacher never needed (its
// clients dialed in, they never needed to find the server).
//
// Discovery never substitutes for authenticated PEER_IP configuration:
// SafetyCore and the authenticated links never consult it directly.
package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS/DNS-SD service type both nodes register and
// browse under.
const ServiceType = "_ropelink._tcp"

// Advertise registers instance under ServiceType on controlPort, carrying
// controlPort/telemetryPort/videoPort as TXT metadata so a browsing peer
// can learn all three from one record. It returns a cleanup function
// that unregisters the service; cleanup is safe to call multiple times.
// If instance is empty, the fixed name "ropelink-base" is used.
func Advertise(ctx context.Context, instance string, controlPort, telemetryPort, videoPort int) (func(), error) {
	if instance == "" {
		instance = "ropelink-base"
	}
	meta := []string{
		"control_port=" + strconv.Itoa(controlPort),
		"telemetry_port=" + strconv.Itoa(telemetryPort),
		"video_port=" + strconv.Itoa(videoPort),
	}
	svc, err := zeroconf.Register(instance, ServiceType, "local.", controlPort, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
		svc.Shutdown()
		time.Sleep(50 * time.Millisecond)
	}, nil
}

// Peer is a discovered Base's control-plane entry point.
type Peer struct {
	IP            string
	ControlPort   int
	TelemetryPort int
	VideoPort     int
}

// Browse searches for one advertised Base for up to timeout and returns
// the first result found. It is used only to populate a default
// PEER_IP when the Robot's own configuration leaves it unset; the
// authenticated links never trust this value more than any other
// configured address.
func Browse(ctx context.Context, timeout time.Duration) (Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Peer{}, fmt.Errorf("discovery: resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 4)
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, ServiceType, "local.", entries); err != nil {
		return Peer{}, fmt.Errorf("discovery: browse: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Peer{}, fmt.Errorf("discovery: no peer found within %s", timeout)
			}
			if entry == nil {
				continue
			}
			return entryToPeer(entry), nil
		case <-browseCtx.Done():
			return Peer{}, fmt.Errorf("discovery: no peer found within %s", timeout)
		}
	}
}

func entryToPeer(entry *zeroconf.ServiceEntry) Peer {
	p := Peer{ControlPort: entry.Port}
	if len(entry.AddrIPv4) > 0 {
		p.IP = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		p.IP = entry.AddrIPv6[0].String()
	}
	for _, field := range entry.Text {
		key, val, ok := splitTXT(field)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "telemetry_port":
			p.TelemetryPort = n
		case "video_port":
			p.VideoPort = n
		case "control_port":
			p.ControlPort = n
		}
	}
	return p
}

func splitTXT(field string) (key, val string, ok bool) {
	for i := 0; i < len(field); i++ {
		if field[i] == '=' {
			return field[:i], field[i+1:], true
		}
	}
	return "", "", false
}
