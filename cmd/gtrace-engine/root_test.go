package main

import (
	"bytes"
	"testing"

	"github.com/hervehildenbrand/gtrace-engine/internal/probe"
)

func TestRootCommand_RequiresTarget(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error when no target is provided")
	}
}

func TestRootCommand_RejectsUnresolvableTarget(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"this.hostname.should.not.resolve.invalid"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for a hostname with no IPv4 records")
	}
}

func TestRootCommand_FlagDefaults(t *testing.T) {
	cmd := NewRootCmd()

	checks := map[string]string{
		"min-ttl":  "1",
		"max-ttl":  "30",
		"timeout":  "500",
		"delay":    "0",
		"mask":     "",
		"protocol": "udp",
		"rounds":   "1",
		"port":     "33434",
		"json":     "false",
	}
	for name, want := range checks {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Fatalf("flag %q not registered", name)
		}
		if f.DefValue != want {
			t.Errorf("flag %q default = %q, want %q", name, f.DefValue, want)
		}
	}
}

func TestParseMask_EmptyIsNoop(t *testing.T) {
	mask, err := parseMask("")
	if err != nil {
		t.Fatalf("parseMask: %v", err)
	}
	for ttl := 1; ttl <= 255; ttl++ {
		if mask.Test(uint8(ttl)) {
			t.Fatalf("ttl %d unexpectedly masked", ttl)
		}
	}
}

func TestParseMask_ListAndRange(t *testing.T) {
	mask, err := parseMask("3,5-7,10")
	if err != nil {
		t.Fatalf("parseMask: %v", err)
	}
	want := map[uint8]bool{3: true, 5: true, 6: true, 7: true, 10: true}
	for ttl := 0; ttl <= 255; ttl++ {
		got := mask.Test(uint8(ttl))
		if got != want[uint8(ttl)] {
			t.Errorf("ttl %d masked = %v, want %v", ttl, got, want[uint8(ttl)])
		}
	}
}

func TestParseMask_RejectsBackwardsRange(t *testing.T) {
	if _, err := parseMask("7-3"); err == nil {
		t.Error("expected an error for a backwards range")
	}
}

func TestParseMask_RejectsGarbage(t *testing.T) {
	if _, err := parseMask("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric field")
	}
}

func TestParseProtocol_UDPAccepted(t *testing.T) {
	p, err := parseProtocol("udp")
	if err != nil {
		t.Fatalf("parseProtocol: %v", err)
	}
	if p != probe.UDP {
		t.Errorf("parseProtocol(\"udp\") = %v, want UDP", p)
	}
}

func TestParseProtocol_RejectsUnknown(t *testing.T) {
	if _, err := parseProtocol("quic"); err == nil {
		t.Error("expected an error for an unrecognized protocol name")
	}
}
