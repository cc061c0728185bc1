package probe

// Proto enumerates the closed set of protocols the packet builder accepts.
// Only Proto == UDP is implemented; the rest return UnimplementedProtocolError.
type Proto int

const (
	UDP Proto = iota
	ICMP
	DCCP
	SCTP
	TCP
)

func (p Proto) String() string {
	switch p {
	case UDP:
		return "udp"
	case ICMP:
		return "icmp"
	case DCCP:
		return "dccp"
	case SCTP:
		return "sctp"
	case TCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// UDPParams carries the source/destination port pair required to build a UDP probe.
type UDPParams struct {
	SourcePort      uint16
	DestinationPort uint16
}

// ProtocolSpec names a member of the closed protocol set, plus the UDP
// parameter pair when Kind == UDP.
type ProtocolSpec struct {
	Kind Proto
	UDP  UDPParams
}

// NewUDPSpec builds the only ProtocolSpec this package fully implements.
func NewUDPSpec(sourcePort, destinationPort uint16) ProtocolSpec {
	return ProtocolSpec{Kind: UDP, UDP: UDPParams{SourcePort: sourcePort, DestinationPort: destinationPort}}
}
