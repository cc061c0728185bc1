package gtrace

import (
	"errors"
	"math/rand/v2"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
)

// ephemeralSourcePort picks a UDP source port in the dynamic/private range
// (RFC 6335), held fixed for the lifetime of a Trace so every probe in every
// round of that Trace shares one flow-hash.
func ephemeralSourcePort() uint16 {
	return uint16(49152 + rand.IntN(65535-49152))
}

// HopMask is a bitset over hop-limits (1-255): the set of TTLs a round
// should skip and report as Masked instead of probing.
type HopMask [256]bool

// Set marks ttl as masked.
func (m *HopMask) Set(ttl uint8) { m[ttl] = true }

// Test reports whether ttl is masked.
func (m HopMask) Test(ttl uint8) bool { return m[ttl] }

// TraceOptions configures one Trace.
type TraceOptions struct {
	MinTTL    uint8
	MaxTTL    uint8
	DelayMS   uint16
	TimeoutMS uint16
	Mask      HopMask
	Protocol  probe.ProtocolSpec
}

// DefaultTraceOptions returns sane UDP-over-IPv4 defaults: TTLs 1-30, a
// fixed 33434 destination port, 500ms per-probe timeout, no delay, no mask.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		MinTTL:    1,
		MaxTTL:    30,
		DelayMS:   0,
		TimeoutMS: 500,
		Protocol:  probe.NewUDPSpec(ephemeralSourcePort(), 33434),
	}
}

// Validate checks the options for internal consistency and rejects
// anything the engine can't act on.
func (o TraceOptions) Validate() error {
	if o.MinTTL == 0 {
		return errors.New("min-ttl must be >= 1: hop-limit 0 never leaves the originating host")
	}
	if o.MaxTTL < o.MinTTL {
		return errors.New("max-ttl must be >= min-ttl")
	}
	if o.TimeoutMS == 0 {
		return errors.New("timeout-ms must be > 0")
	}
	if o.Protocol.Kind != probe.UDP {
		return probe.UnimplementedProtocolError(o.Protocol.Kind)
	}
	return nil
}
