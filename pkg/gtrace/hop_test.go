package gtrace

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestHop_String_Received(t *testing.T) {
	h := Hop{TTL: 3, Kind: HopReceived, Replier: net.ParseIP("203.0.113.9"), RTT: 12 * time.Millisecond}
	s := h.String()
	if !strings.Contains(s, "203.0.113.9") {
		t.Errorf("expected replier in output, got %q", s)
	}
	if !strings.Contains(s, "12ms") {
		t.Errorf("expected RTT in output, got %q", s)
	}
}

func TestHop_String_TimedOut(t *testing.T) {
	h := Hop{TTL: 4, Kind: HopTimedOut}
	if s := h.String(); !strings.Contains(s, "*") {
		t.Errorf("expected a timeout marker, got %q", s)
	}
}

func TestHop_String_Masked(t *testing.T) {
	h := Hop{TTL: 5, Kind: HopMasked}
	if s := h.String(); !strings.Contains(s, "masked") {
		t.Errorf("expected a masked marker, got %q", s)
	}
}

func TestHopKind_String_AllDistinct(t *testing.T) {
	kinds := []HopKind{HopReceived, HopTimedOut, HopMasked}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		if seen[s] {
			t.Errorf("duplicate HopKind string %q", s)
		}
		seen[s] = true
	}
}
