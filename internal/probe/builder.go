package probe

import (
	"math/rand/v2"
	"net"
)

// totalLength is the fixed size of every built packet: a 20-byte IPv4 header
// with no options, an 8-byte UDP header, and a 24-byte zero payload.
const totalLength = 52

const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
	udpPayloadLen = 24
	protoUDP      = 17
)

// Build constructs the wire bytes for one probe and its pre-transmission
// Probe descriptor. It is a pure function: no socket is touched, no state is
// mutated. Only ProtocolSpec{Kind: UDP} over IPv4 is implemented; every other
// member of the closed protocol set returns UnimplementedProtocolError
// without side effects, and any address-family mismatch or out-of-range TTL
// is rejected before any bytes are written.
func Build(spec ProtocolSpec, source, destination net.IP, ttl uint8) ([]byte, Probe, error) {
	if spec.Kind != UDP {
		return nil, Probe{}, UnimplementedProtocolError(spec.Kind)
	}
	if ttl == 0 {
		return nil, Probe{}, MalformedPacketError("hop-limit 0 never leaves the originating host")
	}

	src4, dst4, err := sameFamilyIPv4(source, destination)
	if err != nil {
		return nil, Probe{}, err
	}

	pkt := make([]byte, totalLength)

	ipID := uint16(rand.Uint32() & 0xffff)

	// IPv4 header.
	pkt[0] = (4 << 4) | 5 // version=4, IHL=5 (20 bytes, no options)
	pkt[1] = 0            // DSCP=0, ECN=0
	pkt[2] = byte(totalLength >> 8)
	pkt[3] = byte(totalLength)
	pkt[4] = byte(ipID >> 8)
	pkt[5] = byte(ipID)
	pkt[6] = 0 // flags/fragment offset, unused
	pkt[7] = 0
	pkt[8] = ttl
	pkt[9] = protoUDP
	pkt[10] = 0 // header checksum, filled below
	pkt[11] = 0
	copy(pkt[12:16], src4[:])
	copy(pkt[16:20], dst4[:])

	checksum := rfc1071Checksum(pkt[:ipv4HeaderLen])
	pkt[10] = byte(checksum >> 8)
	pkt[11] = byte(checksum)

	// UDP header + all-zero payload.
	udpSegment := pkt[ipv4HeaderLen:]
	udpSegment[0] = byte(spec.UDP.SourcePort >> 8)
	udpSegment[1] = byte(spec.UDP.SourcePort)
	udpSegment[2] = byte(spec.UDP.DestinationPort >> 8)
	udpSegment[3] = byte(spec.UDP.DestinationPort)
	udpLen := uint16(udpHeaderLen + udpPayloadLen) // 32
	udpSegment[4] = byte(udpLen >> 8)
	udpSegment[5] = byte(udpLen)
	udpSegment[6] = 0 // checksum, filled below
	udpSegment[7] = 0
	// payload (udpSegment[8:32]) is already zero from make().

	udpSum := udpChecksum(src4, dst4, udpSegment)
	udpSegment[6] = byte(udpSum >> 8)
	udpSegment[7] = byte(udpSum)

	p := Probe{
		Source:   source,
		TTL:      ttl,
		ID:       ipID,
		Checksum: udpSum,
		FlowHash: PacketFlowHash(0, 0, spec.UDP.SourcePort, spec.UDP.DestinationPort, source, destination),
	}
	return pkt, p, nil
}

// sameFamilyIPv4 validates that both addresses are present and of the same
// IPv4 family, returning their 4-byte forms.
func sameFamilyIPv4(source, destination net.IP) (src4, dst4 [4]byte, err error) {
	if source == nil || destination == nil {
		return src4, dst4, MalformedPacketError("nil source or destination address")
	}
	s4, d4 := source.To4(), destination.To4()
	if s4 == nil || d4 == nil {
		// Either address is IPv6, or the two disagree in family.
		if s4 == nil && d4 == nil {
			return src4, dst4, NoIPv6Error()
		}
		return src4, dst4, IPProtocolMismatchError()
	}
	copy(src4[:], s4)
	copy(dst4[:], d4)
	return src4, dst4, nil
}
