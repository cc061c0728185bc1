// Package engine implements the Socket Sender, Socket Receiver, and Socket
// Supervisor actors: a multiplexed probe dispatch and reply correlation
// pipeline built from channels, not shared memory.
package engine

import (
	"net"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
)

// Bundle pairs a built packet with the Probe descriptor the Sender stamps
// into a ProbeSent once the packet leaves user space.
type Bundle struct {
	Packet []byte
	Probe  probe.Probe
}

// TraceRequest is what a Trace hands the Sender: one batch of probes sharing
// a flow-hash, a per-probe timeout, and the sending half of the channel the
// Trace will drain for results.
type TraceRequest struct {
	Bundles     []Bundle
	Destination net.IP
	FlowHash    uint16
	Timeout     time.Duration
	Events      chan Event
	// Done is closed by Trace.Close when the Trace stops consuming Events.
	// Actors select on it so a consumer that has walked away never blocks a
	// send. A Trace that is dropped without Close never closes it.
	Done <-chan struct{}
}

// TraceSent is what the Sender hands the Receiver after a batch has fully
// left the wire: the ProbeSent descriptors, the shared flow-hash and
// timeout, and the same Events/Done pair the Trace is waiting on.
type TraceSent struct {
	Probes   []probe.ProbeSent
	FlowHash uint16
	Timeout  time.Duration
	Events   chan Event
	Done     <-chan struct{}
}

// EventKind distinguishes the three ways a probe resolves. Masked is not
// produced here — it never reaches the wire, so the Trace synthesizes it
// directly instead of routing it through the engine.
type EventKind int

const (
	// EventReceived reports a matched ICMP reply.
	EventReceived EventKind = iota
	// EventTimedOut reports a probe whose flow timeout elapsed unanswered.
	EventTimedOut
	// EventError reports a send failure that aborted the whole batch.
	EventError
)

// Event is the single type carried on the Sender/Receiver -> Trace channel.
type Event struct {
	Kind     EventKind
	Response probe.ProbeResponse // valid when Kind == EventReceived
	Sent     probe.ProbeSent     // valid when Kind == EventTimedOut
	Err      error               // valid when Kind == EventError
}

// ActorResult is one actor's join outcome, returned in bulk by
// Supervisor.Close.
type ActorResult struct {
	Actor string
	Err   error
}

// trySend delivers ev on events, but gives up the moment done fires instead
// of blocking forever on an abandoned consumer. Go has no send-to-dropped-
// receiver error the way some runtimes do, so Done stands in for that
// signal: once the Trace on the other end walks away, neither actor should
// stall waiting for it to read.
func trySend(events chan<- Event, done <-chan struct{}, ev Event) {
	select {
	case events <- ev:
	case <-done:
	}
}
