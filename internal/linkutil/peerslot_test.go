package linkutil

import (
	"net"
	"testing"
)

func TestPeerSlotReplaceOnEmptySlot(t *testing.T) {
	var s PeerSlot
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	p1 := NewPeer(c1)
	if prev := s.Replace(p1); prev != nil {
		t.Fatalf("expected no previous occupant, got %v", prev)
	}
	if s.Current() != p1 {
		t.Fatal("expected Current to return the newly installed peer")
	}
	if !s.Occupied() {
		t.Fatal("expected slot occupied after Replace")
	}
}

func TestPeerSlotReplaceSupersedesPrevious(t *testing.T) {
	var s PeerSlot
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	p1 := NewPeer(c1)
	p2 := NewPeer(c2)
	s.Replace(p1)

	prev := s.Replace(p2)
	if prev != p1 {
		t.Fatalf("expected Replace to return the superseded peer, got %v", prev)
	}
	if s.Current() != p2 {
		t.Fatal("expected Current to be the new occupant")
	}
}

func TestPeerSlotRelease(t *testing.T) {
	var s PeerSlot
	c1, _ := net.Pipe()
	defer c1.Close()

	p1 := NewPeer(c1)
	s.Replace(p1)
	s.Release(p1)

	if s.Occupied() {
		t.Fatal("expected slot empty after Release")
	}
	select {
	case <-p1.Closed:
	default:
		t.Fatal("expected Release to close the released peer")
	}
}

func TestPeerSlotReleaseStaleNoop(t *testing.T) {
	var s PeerSlot
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	p1 := NewPeer(c1)
	p2 := NewPeer(c2)
	s.Replace(p1)
	s.Replace(p2)

	// Releasing the stale p1 again must not disturb p2's occupancy.
	s.Release(p1)
	if s.Current() != p2 {
		t.Fatal("stale Release must not evict the current occupant")
	}
	select {
	case <-p2.Closed:
		t.Fatal("stale Release must not close the current occupant")
	default:
	}
}
