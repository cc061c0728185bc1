package probe

import (
	"encoding/binary"
	"hash/fnv"
	"net"
)

// PacketFlowHash derives the 16-bit flow-hash a router's ECMP logic would use
// to classify this packet, per 4.1: DSCP, ECN, source port, destination port,
// source address, destination address fed to a hash in that order, truncated
// to the low 16 bits. This is the flow-hash stamped into every Probe built
// for a given (address, port) tuple, and is what the correlation engine's
// FlowMap keys on.
func PacketFlowHash(dscp, ecn uint8, srcPort, dstPort uint16, src, dst net.IP) uint16 {
	h := fnv.New64a()
	h.Write([]byte{dscp, ecn})
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], srcPort)
	h.Write(buf[:])
	binary.BigEndian.PutUint16(buf[:], dstPort)
	h.Write(buf[:])
	if v4 := src.To4(); v4 != nil {
		h.Write(v4)
	}
	if v4 := dst.To4(); v4 != nil {
		h.Write(v4)
	}
	return uint16(h.Sum64())
}

// TraceFlowHash derives the flow-hash of a Trace as defined in 4.5: DSCP=0,
// ECN=0, source address, destination address, protocol. Two Traces that
// agree on these fields are expected to take the same path. This is
// deliberately narrower than PacketFlowHash (no ports) — it answers "do
// these two Traces share a route", not "which in-flight batch does this
// probe belong to".
func TraceFlowHash(source, destination net.IP, protocol Proto) uint16 {
	h := fnv.New64a()
	h.Write([]byte{0, 0})
	if v4 := source.To4(); v4 != nil {
		h.Write(v4)
	}
	if v4 := destination.To4(); v4 != nil {
		h.Write(v4)
	}
	h.Write([]byte{byte(protocol)})
	return uint16(h.Sum64())
}
