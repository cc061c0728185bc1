package probe

// EchoedIdentifiers holds the correlator fields recovered from the IPv4
// header and UDP header an ICMP TimeExceeded or DestinationUnreachable
// message echoes back: the original IPv4 header plus (when the replying
// stack includes it) the first 8 bytes of the original transport payload.
type EchoedIdentifiers struct {
	ID          uint16 // the echoed IPv4 identification field: the probe-id
	Checksum    uint16 // the echoed UDP checksum: the secondary correlator
	HasChecksum bool   // false when the reply didn't echo enough to read Checksum
}

// ParseEchoed decodes the probe-id and secondary correlator out of the
// ICMP-embedded original packet. It assumes the embedded IPv4 header carries
// no options (IHL == 5), matching every packet this builder produces.
func ParseEchoed(data []byte) (EchoedIdentifiers, error) {
	if len(data) < ipv4HeaderLen+4 {
		return EchoedIdentifiers{}, MalformedPacketError("icmp body too short for embedded IPv4+UDP header")
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < ipv4HeaderLen {
		return EchoedIdentifiers{}, MalformedPacketError("embedded IPv4 header has an implausible IHL")
	}

	id := uint16(data[4])<<8 | uint16(data[5])
	if len(data) < ihl+8 {
		// Some stacks truncate the echoed UDP header to fewer than 8 bytes:
		// the identification field is still readable, but there's no
		// checksum to compare against. The caller must fall back to
		// matching on ID alone rather than treating a missing checksum as a
		// mismatch.
		return EchoedIdentifiers{ID: id}, nil
	}

	udpChecksumOffset := ihl + 6
	checksum := uint16(data[udpChecksumOffset])<<8 | uint16(data[udpChecksumOffset+1])
	return EchoedIdentifiers{ID: id, Checksum: checksum, HasChecksum: true}, nil
}
