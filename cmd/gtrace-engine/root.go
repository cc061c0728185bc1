package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
	"github.com/hervehildenbrand/gtrace-engine/internal/resolve"
	"github.com/hervehildenbrand/gtrace-engine/pkg/gtrace"
	"github.com/spf13/cobra"
)

// config holds the parsed CLI flags for the demonstration harness. The
// engine's own configuration stays out of the CLI layer; this struct only
// plumbs flags into a gtrace.TraceOptions.
type config struct {
	minTTL    uint8
	maxTTL    uint8
	timeoutMS uint16
	delayMS   uint16
	rounds    int
	port      uint16
	mask      string
	protocol  string
	json      bool
}

// NewRootCmd creates the root cobra command: `gtrace-engine <target>`. It is
// a thin demonstration harness over the engine/Trace API — not the
// graph-assembly/rendering layer that stays out of the engine's scope; the
// CLI here only prints one line per Hop once each round completes.
func NewRootCmd() *cobra.Command {
	var cfg config

	cmd := &cobra.Command{
		Use:   "gtrace-engine <target>",
		Short: "probe dispatch and correlation engine demonstration CLI",
		Long: `gtrace-engine drives the probe dispatch and correlation engine directly,
printing one line per discovered hop once each round completes. It resolves
the target to an IPv4 address first, but does not render a graph or
decorate hops with enrichment — those are the excluded collaborators this
engine is built to feed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], &cfg)
		},
	}

	cmd.Flags().Uint8Var(&cfg.minTTL, "min-ttl", 1, "first hop-limit to probe")
	cmd.Flags().Uint8Var(&cfg.maxTTL, "max-ttl", 30, "last hop-limit to probe")
	cmd.Flags().Uint16Var(&cfg.timeoutMS, "timeout", 500, "per-probe timeout in milliseconds")
	cmd.Flags().Uint16Var(&cfg.delayMS, "delay", 0, "inter-packet delay in milliseconds")
	cmd.Flags().StringVar(&cfg.mask, "mask", "", "comma-separated hop-limits (or ranges, e.g. \"3,5-7\") to skip and report as masked")
	cmd.Flags().StringVar(&cfg.protocol, "protocol", "udp", "probe protocol (only udp is implemented)")
	cmd.Flags().IntVar(&cfg.rounds, "rounds", 1, "number of rounds to run, 0 for unlimited")
	cmd.Flags().Uint16Var(&cfg.port, "port", 33434, "UDP destination port, the same for every hop-limit")
	cmd.Flags().BoolVar(&cfg.json, "json", false, "emit each hop as a JSON object instead of a text row")

	return cmd
}

func run(cmd *cobra.Command, target string, cfg *config) error {
	destination, err := resolve.Target(target)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", target, err)
	}

	protoKind, err := parseProtocol(cfg.protocol)
	if err != nil {
		return err
	}

	mask, err := parseMask(cfg.mask)
	if err != nil {
		return fmt.Errorf("parsing --mask: %w", err)
	}

	eng, err := gtrace.New(gtrace.WithInterPacketDelay(time.Duration(cfg.delayMS) * time.Millisecond))
	if err != nil {
		return err
	}
	defer eng.Close()

	addrs, err := eng.Addresses()
	if err != nil || len(addrs) == 0 {
		return fmt.Errorf("no local IPv4 source address available: %w", err)
	}

	opts := gtrace.DefaultTraceOptions()
	opts.MinTTL = cfg.minTTL
	opts.MaxTTL = cfg.maxTTL
	opts.TimeoutMS = cfg.timeoutMS
	opts.DelayMS = cfg.delayMS
	opts.Mask = mask
	opts.Protocol.Kind = protoKind
	opts.Protocol.UDP.DestinationPort = cfg.port

	tr, err := eng.Trace(addrs[0], destination, opts)
	if err != nil {
		return err
	}
	defer tr.Close()

	if !cfg.json {
		fmt.Fprintf(cmd.OutOrStdout(), "tracing %s -> %s, hops %d..%d\n", addrs[0], destination, opts.MinTTL, opts.MaxTTL)
	}

	for round := 0; cfg.rounds == 0 || round < cfg.rounds; round++ {
		hops, err := tr.Next()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		if err := printRound(cmd, round+1, hops, cfg.json); err != nil {
			return err
		}
	}

	return nil
}

func printRound(cmd *cobra.Command, round int, hops []gtrace.Hop, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, h := range hops {
			if err := enc.Encode(jsonHop{Round: round, Hop: h}); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "round %d\n", round)
	for _, h := range hops {
		fmt.Fprintln(cmd.OutOrStdout(), h)
	}
	return nil
}

// jsonHop is the --json wire shape for one hop: gtrace.Hop plus the round it
// belongs to, with the replier address and RTT rendered as plain strings
// instead of net.IP/time.Duration's default JSON encodings.
type jsonHop struct {
	Round int    `json:"round"`
	Hop   gtrace.Hop `json:"-"`
}

func (j jsonHop) MarshalJSON() ([]byte, error) {
	type wire struct {
		Round   int    `json:"round"`
		TTL     uint8  `json:"ttl"`
		Kind    string `json:"kind"`
		Replier string `json:"replier,omitempty"`
		RTTMS   *float64 `json:"rtt_ms,omitempty"`
	}
	w := wire{Round: j.Round, TTL: j.Hop.TTL, Kind: j.Hop.Kind.String()}
	if j.Hop.Kind == gtrace.HopReceived {
		w.Replier = j.Hop.Replier.String()
		ms := float64(j.Hop.RTT.Microseconds()) / 1000.0
		w.RTTMS = &ms
	}
	return json.Marshal(w)
}

// parseProtocol maps the CLI's --protocol flag onto the engine's closed
// protocol set.
func parseProtocol(name string) (probe.Proto, error) {
	switch strings.ToLower(name) {
	case "udp":
		return probe.UDP, nil
	case "icmp":
		return probe.ICMP, nil
	case "dccp":
		return probe.DCCP, nil
	case "sctp":
		return probe.SCTP, nil
	case "tcp":
		return probe.TCP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", name)
	}
}

// parseMask parses a comma-separated list of hop-limits and hop-limit
// ranges (e.g. "3,5-7,10") into a gtrace.HopMask.
func parseMask(spec string) (gtrace.HopMask, error) {
	var mask gtrace.HopMask
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return mask, nil
	}

	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		lo, hi, err := parseMaskField(field)
		if err != nil {
			return mask, err
		}
		for ttl := lo; ttl <= hi; ttl++ {
			mask.Set(ttl)
			if ttl == 255 {
				break
			}
		}
	}
	return mask, nil
}

func parseMaskField(field string) (lo, hi uint8, err error) {
	if dash := strings.IndexByte(field, '-'); dash >= 0 {
		lo, err = parseTTL(field[:dash])
		if err != nil {
			return 0, 0, err
		}
		hi, err = parseTTL(field[dash+1:])
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("invalid range %q: end before start", field)
		}
		return lo, hi, nil
	}
	ttl, err := parseTTL(field)
	if err != nil {
		return 0, 0, err
	}
	return ttl, ttl, nil
}

func parseTTL(s string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hop-limit %q: %w", s, err)
	}
	return uint8(n), nil
}
