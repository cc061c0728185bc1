package gtrace

import (
	"testing"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
)

func TestDefaultTraceOptions_Valid(t *testing.T) {
	opts := DefaultTraceOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options should validate, got %v", err)
	}
	if opts.MinTTL != 1 || opts.MaxTTL != 30 {
		t.Errorf("unexpected default TTL range: %d..%d", opts.MinTTL, opts.MaxTTL)
	}
	if opts.Protocol.Kind != probe.UDP {
		t.Errorf("default protocol = %v, want UDP", opts.Protocol.Kind)
	}
}

func TestTraceOptions_Validate_RejectsZeroMinTTL(t *testing.T) {
	opts := DefaultTraceOptions()
	opts.MinTTL = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected an error for min-ttl 0")
	}
}

func TestTraceOptions_Validate_RejectsMaxBelowMin(t *testing.T) {
	opts := DefaultTraceOptions()
	opts.MinTTL = 10
	opts.MaxTTL = 5
	if err := opts.Validate(); err == nil {
		t.Error("expected an error when max-ttl < min-ttl")
	}
}

func TestTraceOptions_Validate_RejectsZeroTimeout(t *testing.T) {
	opts := DefaultTraceOptions()
	opts.TimeoutMS = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected an error for timeout-ms 0")
	}
}

func TestTraceOptions_Validate_RejectsUnimplementedProtocol(t *testing.T) {
	opts := DefaultTraceOptions()
	opts.Protocol = probe.ProtocolSpec{Kind: probe.ICMP}
	err := opts.Validate()
	if !probe.Is(err, probe.KindUnimplementedProtocol) {
		t.Errorf("expected KindUnimplementedProtocol, got %v", err)
	}
}

func TestHopMask_SetAndTest(t *testing.T) {
	var mask HopMask
	if mask.Test(5) {
		t.Fatal("expected a fresh mask to have nothing set")
	}
	mask.Set(5)
	if !mask.Test(5) {
		t.Error("expected ttl 5 to be masked after Set")
	}
	if mask.Test(6) {
		t.Error("expected ttl 6 to remain unmasked")
	}
}

func TestEphemeralSourcePort_WithinDynamicRange(t *testing.T) {
	for i := 0; i < 32; i++ {
		p := ephemeralSourcePort()
		if p < 49152 {
			t.Errorf("port %d is below the dynamic/private range", p)
		}
	}
}
