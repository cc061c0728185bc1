//go:build !windows

// Package rawsock owns the low-level transmit socket the Socket Sender uses
// to put hand-built IPv4 packets on the wire exactly as the packet builder
// assembled them (header included, via IP_HDRINCL), and the interface
// discovery the Socket Supervisor uses to pick a default source address.
package rawsock

import (
	"net"

	"golang.org/x/sys/unix"
)

// TXSocket is the single-purpose raw IPv4 socket the Sender actor owns. It is
// opened once by the Supervisor and used for the lifetime of the engine.
type TXSocket struct {
	fd int
}

// OpenTX opens a raw IPv4 socket with IP_HDRINCL set, so the kernel transmits
// the caller's header byte-for-byte instead of constructing its own. This is
// what lets the packet builder's hand-computed TTL and checksums survive
// onto the wire unmodified.
func OpenTX() (*TXSocket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &TXSocket{fd: fd}, nil
}

// SendTo writes a fully-built IPv4 packet (header included) to destination.
func (s *TXSocket) SendTo(packet []byte, destination net.IP) error {
	dst4 := destination.To4()
	if dst4 == nil {
		return unix.EAFNOSUPPORT
	}
	addr := unix.SockaddrInet4{}
	copy(addr.Addr[:], dst4)
	return unix.Sendto(s.fd, packet, 0, &addr)
}

// Close releases the socket. Safe to call once.
func (s *TXSocket) Close() error {
	return unix.Close(s.fd)
}

// SourceIPv4ForInterface returns the first IPv4 address bound to the named
// interface, for callers that want to pin the engine's source address to a
// specific NIC instead of letting DefaultSourceIPv4 pick one.
func SourceIPv4ForInterface(name string) (net.IP, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		var ip net.IP
		switch a := addr.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, unix.EADDRNOTAVAIL
}

// DefaultSourceIPv4 returns the first non-loopback, up, IPv4-capable
// interface with a non-zero hardware address.
func DefaultSourceIPv4() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 || isZeroMAC(iface.HardwareAddr) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if v4 := ip.To4(); v4 != nil {
				return v4, nil
			}
		}
	}
	return nil, unix.EADDRNOTAVAIL
}

// LocalIPv4Addresses returns every IPv4 address bound to an up, non-loopback
// interface, for Engine.Addresses.
func LocalIPv4Addresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if v4 := ip.To4(); v4 != nil {
				out = append(out, v4)
			}
		}
	}
	return out, nil
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
