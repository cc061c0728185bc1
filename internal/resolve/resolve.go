// Package resolve turns a CLI-supplied target string into the IPv4 address
// the engine needs. Hostname resolution happens ahead of the engine rather
// than inside it, so the engine never has to know whether it was handed a
// literal address or a name.
package resolve

import (
	"errors"
	"net"
)

// Target resolves a hostname or dotted-decimal string to an IPv4 net.IP. A
// literal IPv6 address, or a hostname with no IPv4 records, is an error: the
// engine has no IPv6 transmission path.
func Target(target string) (net.IP, error) {
	if ip := net.ParseIP(target); ip != nil {
		v4 := ip.To4()
		if v4 == nil {
			return nil, errors.New("IPv6 address provided, but this engine only sends IPv4 probes")
		}
		return v4, nil
	}

	ips, err := net.LookupIP(target)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errors.New("no IPv4 address found for hostname")
}
