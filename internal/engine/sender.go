package engine

import (
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
	"github.com/hervehildenbrand/gtrace-engine/internal/rawsock"
)

// Sender is the single-threaded actor that owns the transmit socket. It
// consumes TraceRequests, sends each bundle's packet in hop-limit order,
// and atomically forwards the whole batch to the Receiver once every packet
// in it has left user space.
type Sender struct {
	tx       *rawsock.TXSocket
	requests <-chan TraceRequest
	handoff  chan<- TraceSent
	runnable *atomic.Bool
	delay    time.Duration
}

// NewSender constructs a Sender bound to tx. delay is a small, optional
// inter-packet gap used to avoid tripping local rate limits; it is not
// required for correctness.
func NewSender(tx *rawsock.TXSocket, requests <-chan TraceRequest, handoff chan<- TraceSent, runnable *atomic.Bool, delay time.Duration) *Sender {
	return &Sender{tx: tx, requests: requests, handoff: handoff, runnable: runnable, delay: delay}
}

// Run is the Sender's loop. It returns nil when the request channel closes
// or runnable flips false, and a non-nil error only for a fault that should
// end the actor; per-batch I/O failures are reported to the affected Trace
// instead and do not stop the loop.
func (s *Sender) Run() error {
	for s.runnable.Load() {
		req, ok := <-s.requests
		if !ok {
			return nil
		}
		s.handle(req)
	}
	return nil
}

// handle transmits one batch in hop-limit order and forwards the resulting
// ProbeSent set to the Receiver as a single TraceSent.
func (s *Sender) handle(req TraceRequest) {
	sent := make([]probe.ProbeSent, 0, len(req.Bundles))
	for i, b := range req.Bundles {
		if err := s.tx.SendTo(b.Packet, req.Destination); err != nil {
			trySend(req.Events, req.Done, Event{Kind: EventError, Err: err})
			break
		}
		sent = append(sent, b.Probe.Sent(time.Now()))
		if s.delay > 0 && i < len(req.Bundles)-1 {
			time.Sleep(s.delay)
		}
	}

	if len(sent) == 0 {
		// Nothing reached the wire: the Receiver will never learn about this
		// flow, so nothing will ever close Events. Close it here so the
		// Trace's drain loop terminates instead of hanging.
		close(req.Events)
		return
	}

	ts := TraceSent{
		Probes:   sent,
		FlowHash: req.FlowHash,
		Timeout:  req.Timeout,
		Events:   req.Events,
		Done:     req.Done,
	}

	select {
	case s.handoff <- ts:
	case <-req.Done:
		// The consumer walked away mid-batch. The Receiver will never see
		// this flow either way; close Events ourselves since no TraceSent
		// was delivered for it to GC.
		close(req.Events)
	}
}
