package engine

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
	"github.com/hervehildenbrand/gtrace-engine/internal/rawsock"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
)

// Supervisor owns the two raw sockets and the two actors built on top of
// them. It is the sole lifecycle owner: nothing else opens or closes a
// socket, and nothing else spawns an actor goroutine.
type Supervisor struct {
	log *logrus.Entry

	tx *rawsock.TXSocket
	rx *icmp.PacketConn

	sourceIPv4 net.IP

	submit  chan TraceRequest
	handoff chan TraceSent

	runnable *atomic.Bool

	wg      sync.WaitGroup
	results [2]ActorResult
	once    sync.Once
}

// NewSupervisor opens the transmit and receive sockets, discovers the
// source address, and spawns the Sender and Receiver actors. When
// sourceInterface is non-empty, the source address is taken from that named
// interface instead of the first eligible interface found.
func NewSupervisor(log *logrus.Entry, delay time.Duration, sourceInterface string) (*Supervisor, error) {
	var src net.IP
	var err error
	if sourceInterface != "" {
		src, err = rawsock.SourceIPv4ForInterface(sourceInterface)
	} else {
		src, err = rawsock.DefaultSourceIPv4()
	}
	if err != nil {
		return nil, probe.IOError(err)
	}

	tx, err := rawsock.OpenTX()
	if err != nil {
		return nil, probe.IOError(err)
	}

	rx, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		_ = tx.Close()
		return nil, probe.IOError(err)
	}

	runnable := &atomic.Bool{}
	runnable.Store(true)

	s := &Supervisor{
		log:        log,
		tx:         tx,
		rx:         rx,
		sourceIPv4: src,
		submit:     make(chan TraceRequest),
		handoff:    make(chan TraceSent),
		runnable:   runnable,
	}

	sender := NewSender(tx, s.submit, s.handoff, runnable, delay)
	receiver := NewReceiver(rx, s.handoff, runnable, log.WithField("actor", "receiver"))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.results[0] = guardedRun("sender", sender.Run)
	}()
	go func() {
		defer s.wg.Done()
		s.results[1] = guardedRun("receiver", receiver.Run)
	}()

	return s, nil
}

// Submit returns the submission channel Traces send TraceRequests on.
// Multiple Traces share the same channel; Go channels support concurrent
// senders natively, so no explicit "clone" step is needed.
func (s *Supervisor) Submit() chan<- TraceRequest { return s.submit }

// SourceIPv4 returns the default source address discovered at construction.
func (s *Supervisor) SourceIPv4() net.IP { return s.sourceIPv4 }

// Close flips runnable false, closes the submission channel so the Sender's
// current receive unblocks, waits for both actors to return, closes both
// sockets, and returns each actor's join outcome. Safe to call more than
// once; only the first call does the work.
func (s *Supervisor) Close() []ActorResult {
	s.once.Do(func() {
		s.runnable.Store(false)
		close(s.submit)
		s.wg.Wait()
		_ = s.tx.Close()
		_ = s.rx.Close()
	})
	return []ActorResult{s.results[0], s.results[1]}
}

// guardedRun executes fn, converting a panic into an ActorResult instead of
// crashing the process: an actor fault is surfaced through Close's return
// value, not by taking the whole program down with it.
func guardedRun(actor string, fn func() error) (result ActorResult) {
	result.Actor = actor
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("%s actor panicked: %v", actor, r)
		}
	}()
	result.Err = fn()
	return
}
