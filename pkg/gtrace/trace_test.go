package gtrace

import (
	"net"
	"testing"

	"github.com/hervehildenbrand/gtrace-engine/internal/engine"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log.WithField("actor", "test")
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestTrace_MaskedOnlyRange covers the case where every hop-limit in range
// is masked, so a round synthesizes Masked hops without sending anything or
// touching the submission channel.
func TestTrace_MaskedOnlyRange(t *testing.T) {
	opts := DefaultTraceOptions()
	opts.MinTTL = 5
	opts.MaxTTL = 7
	opts.Mask.Set(5)
	opts.Mask.Set(6)
	opts.Mask.Set(7)

	submit := make(chan engine.TraceRequest) // never read: a send would deadlock/panic the test
	tr, err := newTrace(net.ParseIP("192.0.2.1"), net.ParseIP("198.51.100.7"), opts, submit, testLogger())
	if err != nil {
		t.Fatalf("newTrace: %v", err)
	}
	defer tr.Close()

	hops, err := tr.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(hops) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(hops))
	}
	for i, h := range hops {
		wantTTL := uint8(5 + i)
		if h.TTL != wantTTL {
			t.Errorf("hop %d: TTL = %d, want %d", i, h.TTL, wantTTL)
		}
		if h.Kind != HopMasked {
			t.Errorf("hop %d: Kind = %v, want HopMasked", i, h.Kind)
		}
	}
}

func TestNewTrace_RejectsAddressFamilyMismatch(t *testing.T) {
	submit := make(chan engine.TraceRequest)
	_, err := newTrace(net.ParseIP("192.0.2.1"), net.ParseIP("2001:db8::1"), DefaultTraceOptions(), submit, testLogger())
	if err == nil {
		t.Fatal("expected an error for mismatched address families")
	}
}

func TestNewTrace_RejectsInvalidOptions(t *testing.T) {
	submit := make(chan engine.TraceRequest)
	opts := DefaultTraceOptions()
	opts.MinTTL = 0
	_, err := newTrace(net.ParseIP("192.0.2.1"), net.ParseIP("198.51.100.7"), opts, submit, testLogger())
	if err == nil {
		t.Fatal("expected an error for min-ttl 0")
	}
}

// TestTrace_FlowHash_StableAcrossCalls checks the public Trace-level
// flow-hash (distinct from the per-packet flow-hash used internally).
func TestTrace_FlowHash_StableAcrossCalls(t *testing.T) {
	submit := make(chan engine.TraceRequest)
	tr, err := newTrace(net.ParseIP("192.0.2.1"), net.ParseIP("198.51.100.7"), DefaultTraceOptions(), submit, testLogger())
	if err != nil {
		t.Fatalf("newTrace: %v", err)
	}
	defer tr.Close()

	if tr.FlowHash() != tr.FlowHash() {
		t.Error("FlowHash should be stable across calls")
	}
}
