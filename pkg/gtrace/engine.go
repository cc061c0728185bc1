// Package gtrace is the top-level façade over the engine: it holds one
// Supervisor and manufactures Traces on demand. This is the only package
// external callers (a CLI, or a graph-assembly layer built on top) are
// meant to import.
package gtrace

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/hervehildenbrand/gtrace-engine/internal/engine"
	"github.com/hervehildenbrand/gtrace-engine/internal/rawsock"
	"github.com/sirupsen/logrus"
)

// Engine is the stateless façade over one Supervisor. Every Trace it
// manufactures shares the same Sender/Receiver pair and therefore the same
// pair of sockets.
type Engine struct {
	// ID distinguishes this Engine instance in logs when a process runs
	// more than one concurrently.
	ID  uuid.UUID
	sup *engine.Supervisor
	log *logrus.Entry
}

// Option configures Engine construction.
type Option func(*engineConfig)

type engineConfig struct {
	delay           time.Duration
	logger          *logrus.Logger
	sourceInterface string
}

// WithInterPacketDelay sets the small, optional gap the Sender waits
// between packets in a batch.
func WithInterPacketDelay(d time.Duration) Option {
	return func(c *engineConfig) { c.delay = d }
}

// WithLogger overrides the logrus logger the engine's Receiver uses for its
// non-fatal diagnostics.
func WithLogger(l *logrus.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithSourceInterface pins the engine's source address to the named local
// interface instead of letting it pick the first eligible one. Useful on
// multi-homed hosts where the default choice isn't the desired egress NIC.
func WithSourceInterface(name string) Option {
	return func(c *engineConfig) { c.sourceInterface = name }
}

// New constructs the Supervisor, opening both raw sockets and spawning the
// Sender and Receiver actors.
func New(opts ...Option) (*Engine, error) {
	cfg := engineConfig{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.New()
	log := cfg.logger.WithField("engine_id", id.String())

	sup, err := engine.NewSupervisor(log, cfg.delay, cfg.sourceInterface)
	if err != nil {
		return nil, err
	}

	return &Engine{ID: id, sup: sup, log: log}, nil
}

// Addresses returns every IPv4 address bound to an up, non-loopback local
// interface.
func (e *Engine) Addresses() ([]net.IP, error) {
	return rawsock.LocalIPv4Addresses()
}

// SourceIPv4 returns the source address the Supervisor discovered (or was
// pinned to via WithSourceInterface) at construction.
func (e *Engine) SourceIPv4() net.IP {
	return e.sup.SourceIPv4()
}

// Trace validates source/destination address-family agreement and
// constructs a Trace bound to this Engine's Supervisor.
func (e *Engine) Trace(source, destination net.IP, options TraceOptions) (*Trace, error) {
	return newTrace(source, destination, options, e.sup.Submit(), e.log.WithFields(logrus.Fields{
		"source":      source.String(),
		"destination": destination.String(),
	}))
}

// Close tears down the Supervisor: both actors complete their current outer
// iteration and return, both sockets close, and their join outcomes are
// returned.
func (e *Engine) Close() []engine.ActorResult {
	return e.sup.Close()
}
