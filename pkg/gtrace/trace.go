package gtrace

import (
	"context"
	"net"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/engine"
	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
	"github.com/sirupsen/logrus"
)

// Trace produces one round of results per call to Next, until Close is
// called. A round is one sweep from MinTTL through MaxTTL, skipping masked
// hop-limits. A Trace is not limited to a single round: it keeps producing
// fresh rounds on demand for as long as the caller keeps polling.
type Trace struct {
	source      net.IP
	destination net.IP
	options     TraceOptions
	submit      chan<- engine.TraceRequest

	ctx    context.Context
	cancel context.CancelFunc

	log *logrus.Entry
}

// newTrace validates address-family agreement and constructs a Trace bound
// to submit. It is unexported: callers go through Engine.Trace.
func newTrace(source, destination net.IP, options TraceOptions, submit chan<- engine.TraceRequest, log *logrus.Entry) (*Trace, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	s4, d4 := source.To4(), destination.To4()
	switch {
	case s4 == nil && d4 == nil:
		return nil, probe.NoIPv6Error()
	case s4 == nil || d4 == nil:
		return nil, probe.IPProtocolMismatchError()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Trace{
		source:      source,
		destination: destination,
		options:     options,
		submit:      submit,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}, nil
}

// FlowHash is the Trace-level flow-hash (source, destination, protocol,
// DSCP=0, ECN=0) — two Traces that agree on it are expected to take the
// same path. Distinct from the per-packet flow-hash the engine uses
// internally for correlation (internal/probe.PacketFlowHash), which
// additionally incorporates the UDP ports.
func (t *Trace) FlowHash() uint16 {
	return probe.TraceFlowHash(t.source, t.destination, t.options.Protocol.Kind)
}

// Next runs one round and blocks until every emitted probe has resolved
// (Received, TimedOut) and every masked hop-limit has been synthesized,
// then returns the round's hops in ascending hop-limit order. A nil slice
// with a nil error is never returned: a round always either succeeds with
// len == MaxTTL-MinTTL+1 hops, or returns an error.
func (t *Trace) Next() ([]Hop, error) {
	width := int(t.options.MaxTTL-t.options.MinTTL) + 1
	queue := make([]*Hop, width)

	for ttl := t.options.MinTTL; ; ttl++ {
		if t.options.Mask.Test(ttl) {
			idx := int(ttl - t.options.MinTTL)
			queue[idx] = &Hop{TTL: ttl, Kind: HopMasked}
		}
		if ttl == t.options.MaxTTL {
			break
		}
	}

	bundles := make([]engine.Bundle, 0, width)
	for ttl := t.options.MinTTL; ; ttl++ {
		if !t.options.Mask.Test(ttl) {
			pkt, p, err := probe.Build(t.options.Protocol, t.source, t.destination, ttl)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, engine.Bundle{Packet: pkt, Probe: p})
		}
		if ttl == t.options.MaxTTL {
			break
		}
	}

	if len(bundles) == 0 {
		// Every hop-limit in range was masked: synthesize the round with no
		// packets sent at all.
		return collect(queue), nil
	}

	events := make(chan engine.Event, len(bundles))
	flowHash := bundles[0].Probe.FlowHash
	req := engine.TraceRequest{
		Bundles:     bundles,
		Destination: t.destination,
		FlowHash:    flowHash,
		Timeout:     time.Duration(t.options.TimeoutMS) * time.Millisecond,
		Events:      events,
		Done:        t.ctx.Done(),
	}

	select {
	case t.submit <- req:
	case <-t.ctx.Done():
		return nil, probe.ChannelClosedError("trace closed before request could be submitted")
	}

	for ev := range events {
		switch ev.Kind {
		case engine.EventReceived:
			idx := int(ev.Response.TTL - t.options.MinTTL)
			queue[idx] = &Hop{
				TTL:     ev.Response.TTL,
				Kind:    HopReceived,
				Replier: ev.Response.Replier,
				RTT:     ev.Response.RTT(),
			}
		case engine.EventTimedOut:
			idx := int(ev.Sent.TTL - t.options.MinTTL)
			queue[idx] = &Hop{TTL: ev.Sent.TTL, Kind: HopTimedOut}
		case engine.EventError:
			return nil, probe.IOError(ev.Err)
		}
	}

	return collect(queue), nil
}

// Close stops this Trace from submitting further requests and releases any
// in-flight round's consumer-side reference, so the engine's GC path can
// retire outstanding ProbeMap/FlowMap entries instead of blocking forever
// on a channel nobody reads.
func (t *Trace) Close() {
	t.cancel()
}

func collect(queue []*Hop) []Hop {
	hops := make([]Hop, len(queue))
	for i, h := range queue {
		if h != nil {
			hops[i] = *h
		}
	}
	return hops
}
