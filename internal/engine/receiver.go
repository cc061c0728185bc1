package engine

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// unmatchedGrace is how long a reply that arrived before its TraceSent
// handoff is kept around waiting for that handoff.
const unmatchedGrace = 10 * time.Second

// readTimeout bounds each blocking read on the ICMP socket so the GC sweep
// runs regularly even when nothing is arriving.
const readTimeout = 100 * time.Microsecond

// flowEntry is the FlowMap's value: the timeout and reply channel shared by
// every outstanding probe in one flow, plus a live count of ProbeMap entries
// still referencing it so the GC sweep knows when to retire the entry.
type flowEntry struct {
	timeout time.Duration
	events  chan Event
	done    <-chan struct{}
	count   int
}

// unmatchedEntry is the UnmatchedMap's value: a reply that arrived before
// the Receiver learned about its probe.
type unmatchedEntry struct {
	replier     net.IP
	checksum    uint16
	hasChecksum bool
	instant     time.Time
}

// Receiver is the single-threaded actor that owns the receive socket. It
// maintains the ProbeMap, UnmatchedMap, and FlowMap, and is the sole
// mutator of all three: no other goroutine ever touches them.
type Receiver struct {
	rx       *icmp.PacketConn
	handoff  <-chan TraceSent
	runnable *atomic.Bool
	log      *logrus.Entry

	probeMap  map[uint16]probe.ProbeSent
	unmatched map[uint16]unmatchedEntry
	flows     map[uint16]*flowEntry
}

// NewReceiver constructs a Receiver bound to rx.
func NewReceiver(rx *icmp.PacketConn, handoff <-chan TraceSent, runnable *atomic.Bool, log *logrus.Entry) *Receiver {
	return &Receiver{
		rx:        rx,
		handoff:   handoff,
		runnable:  runnable,
		log:       log,
		probeMap:  make(map[uint16]probe.ProbeSent),
		unmatched: make(map[uint16]unmatchedEntry),
		flows:     make(map[uint16]*flowEntry),
	}
}

// Run is the Receiver's loop: drain the handoff channel, then read one
// packet with a short timeout and correlate it; when the read times out
// instead, sweep for timeouts and expired unmatched entries. It returns only on an unrecoverable socket fault;
// parse errors and unmatched packets are logged and discarded.
func (r *Receiver) Run() error {
	buf := make([]byte, 1500)
	for r.runnable.Load() {
		r.drainHandoff()

		if err := r.rx.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return probe.IOError(err)
		}
		n, peer, err := r.rx.ReadFrom(buf)
		receivedAt := time.Now()
		if err != nil {
			if isTimeout(err) {
				r.sweep()
				continue
			}
			return probe.IOError(err)
		}

		r.ingest(buf[:n], peer, receivedAt)
	}
	return nil
}

// drainHandoff installs every pending TraceSent: probes with an already-
// waiting UnmatchedMap entry resolve immediately, everything else is
// installed into the ProbeMap and its flow's refcount.
func (r *Receiver) drainHandoff() {
	for {
		select {
		case ts, ok := <-r.handoff:
			if !ok {
				return
			}
			r.install(ts)
		default:
			return
		}
	}
}

func (r *Receiver) install(ts TraceSent) {
	flow := r.flows[ts.FlowHash]
	if flow == nil {
		flow = &flowEntry{timeout: ts.Timeout, events: ts.Events, done: ts.Done}
		r.flows[ts.FlowHash] = flow
	}

	for _, sent := range ts.Probes {
		if um, ok := r.unmatched[sent.ID]; ok && (!um.hasChecksum || um.checksum == sent.Checksum) {
			delete(r.unmatched, sent.ID)
			resp := sent.Received(um.replier, um.instant)
			trySend(flow.events, flow.done, Event{Kind: EventReceived, Response: resp})
			continue
		}
		r.probeMap[sent.ID] = sent
		flow.count++
	}

	if flow.count == 0 {
		delete(r.flows, ts.FlowHash)
		close(flow.events)
	}
}

// ingest parses one inbound packet and, on a successful match, emits a
// Received event; otherwise it logs and discards (malformed packet,
// unexpected ICMP type) or files the reply in the UnmatchedMap for a later
// TraceSent to claim.
func (r *Receiver) ingest(raw []byte, peer net.Addr, receivedAt time.Time) {
	rm, err := icmp.ParseMessage(1, raw) // protocol 1 = ICMPv4
	if err != nil {
		r.log.WithError(err).Debug("malformed icmp packet, discarding")
		return
	}

	var body []byte
	switch rm.Type {
	case ipv4.ICMPTypeTimeExceeded:
		te, ok := rm.Body.(*icmp.TimeExceeded)
		if !ok {
			r.log.Debug("time exceeded message missing body, discarding")
			return
		}
		body = te.Data
	case ipv4.ICMPTypeEchoReply:
		// Not expected for UDP probes, but the accepted ICMP type set
		// includes it: there is no embedded original packet to correlate
		// against, so discard unless a future ICMP prober wires an ID
		// lookup here.
		r.log.Debug("echo reply received, no embedded probe to correlate")
		return
	case ipv4.ICMPTypeDestinationUnreachable:
		du, ok := rm.Body.(*icmp.DstUnreach)
		if !ok {
			r.log.Debug("destination unreachable message missing body, discarding")
			return
		}
		body = du.Data
	default:
		r.log.WithField("icmp_type", rm.Type).Debug("unexpected icmp type, discarding")
		return
	}

	echoed, err := probe.ParseEchoed(body)
	if err != nil {
		r.log.WithError(err).Debug("malformed echoed packet, discarding")
		return
	}

	replier := peerIP(peer)
	r.correlate(echoed, replier, receivedAt)
}

// correlate matches an echoed probe-id against the ProbeMap, falling back to
// the UnmatchedMap when the owning TraceSent has not arrived yet (the
// early-reply race: a nearby router can answer before the Sender has even
// finished handing the rest of the batch to the Receiver).
func (r *Receiver) correlate(echoed probe.EchoedIdentifiers, replier net.IP, receivedAt time.Time) {
	sent, ok := r.probeMap[echoed.ID]
	if !ok {
		r.unmatched[echoed.ID] = unmatchedEntry{
			replier:     replier,
			checksum:    echoed.Checksum,
			hasChecksum: echoed.HasChecksum,
			instant:     receivedAt,
		}
		return
	}

	if echoed.HasChecksum && sent.Checksum != echoed.Checksum {
		// Same probe-id, different inner checksum: almost certainly a
		// birthday collision rather than a genuine reply to this probe.
		// Leave the ProbeMap entry in place so the real probe can still
		// time out or match correctly later.
		r.log.WithFields(logrus.Fields{
			"probe_id":        echoed.ID,
			"want_checksum":   sent.Checksum,
			"echoed_checksum": echoed.Checksum,
		}).Debug("probe-id matched but checksum disagreed, treating as collision")
		return
	}

	delete(r.probeMap, echoed.ID)
	flow := r.flows[sent.FlowHash]
	if flow == nil {
		// Shouldn't happen: every ProbeMap entry has a live flow by
		// construction. Nothing to deliver to.
		return
	}
	flow.count--

	resp := sent.Received(replier, receivedAt)
	trySend(flow.events, flow.done, Event{Kind: EventReceived, Response: resp})

	if flow.count == 0 {
		delete(r.flows, sent.FlowHash)
		close(flow.events)
	}
}

// sweep runs the periodic GC pass: expire ProbeMap entries past their
// flow's timeout, drop stale UnmatchedMap entries, and retire FlowMap
// entries with no remaining ProbeMap references.
func (r *Receiver) sweep() {
	now := time.Now()

	for id, sent := range r.probeMap {
		flow := r.flows[sent.FlowHash]
		if flow == nil {
			delete(r.probeMap, id)
			continue
		}
		if now.Sub(sent.Instant) <= flow.timeout {
			continue
		}
		delete(r.probeMap, id)
		flow.count--
		trySend(flow.events, flow.done, Event{Kind: EventTimedOut, Sent: sent})
		if flow.count == 0 {
			delete(r.flows, sent.FlowHash)
			close(flow.events)
		}
	}

	for id, um := range r.unmatched {
		if now.Sub(um.instant) > unmatchedGrace {
			delete(r.unmatched, id)
		}
	}
}

func peerIP(peer net.Addr) net.IP {
	switch a := peer.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
