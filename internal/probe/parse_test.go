package probe

import (
	"net"
	"testing"
)

func TestParseEchoed_FullHeader(t *testing.T) {
	src := net.ParseIP("192.0.2.1")
	dst := net.ParseIP("198.51.100.7")

	pkt, p, err := Build(testSpec(), src, dst, 7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	echoed, err := ParseEchoed(pkt)
	if err != nil {
		t.Fatalf("ParseEchoed: %v", err)
	}
	if echoed.ID != p.ID {
		t.Errorf("ID = %d, want %d", echoed.ID, p.ID)
	}
	if !echoed.HasChecksum {
		t.Error("expected HasChecksum to be true for a full embedded header")
	}
	if echoed.Checksum != p.Checksum {
		t.Errorf("Checksum = %d, want %d", echoed.Checksum, p.Checksum)
	}
}

func TestParseEchoed_TruncatedUDPHeader(t *testing.T) {
	src := net.ParseIP("192.0.2.1")
	dst := net.ParseIP("198.51.100.7")

	pkt, p, err := Build(testSpec(), src, dst, 7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Some stacks echo only the first 4 bytes of the original transport
	// header: enough for the IPv4 identification field, not enough to reach
	// the UDP checksum.
	truncated := pkt[:ipv4HeaderLen+4]

	echoed, err := ParseEchoed(truncated)
	if err != nil {
		t.Fatalf("ParseEchoed: %v", err)
	}
	if echoed.ID != p.ID {
		t.Errorf("ID = %d, want %d", echoed.ID, p.ID)
	}
	if echoed.HasChecksum {
		t.Error("expected HasChecksum to be false when the echoed header is too short")
	}
	if echoed.Checksum != 0 {
		t.Errorf("Checksum = %d, want 0 when unavailable", echoed.Checksum)
	}
}

func TestParseEchoed_RejectsBareIPv4Header(t *testing.T) {
	if _, err := ParseEchoed(make([]byte, ipv4HeaderLen)); !Is(err, KindMalformedPacket) {
		t.Errorf("expected MalformedPacket, got %v", err)
	}
}
