package probe

import "encoding/binary"

// rfc1071Checksum computes the one's-complement-of-one's-complement-sum
// checksum used by the IPv4 header (RFC 1071). The checksum field itself
// must be zeroed in data before calling.
func rfc1071Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// udpChecksum computes the RFC 768 UDP checksum over the IPv4 pseudo-header,
// the UDP header, and the payload. The UDP checksum field itself must be
// zeroed in udpSegment before calling.
func udpChecksum(src, dst [4]byte, udpSegment []byte) uint16 {
	pseudo := make([]byte, 0, 12+len(udpSegment))
	pseudo = append(pseudo, src[:]...)
	pseudo = append(pseudo, dst[:]...)
	pseudo = append(pseudo, 0x00, 17) // zero, protocol = UDP
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(udpSegment)))
	pseudo = append(pseudo, length[:]...)
	pseudo = append(pseudo, udpSegment...)

	sum := rfc1071Checksum(pseudo)
	if sum == 0 {
		// RFC 768: a computed checksum of zero is transmitted as all-ones.
		return 0xffff
	}
	return sum
}
