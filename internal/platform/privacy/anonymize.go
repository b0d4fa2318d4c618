// Package privacy truncates client identifiers before they reach audit sinks.
package privacy

import "net/netip"

const (
	ipv4Bits = 24
	ipv6Bits = 48
)

// AnonymizeIP masks an address to its /24 (IPv4) or /48 (IPv6) network.
// A trailing port is dropped. Empty input yields "unknown" and unparseable
// input "invalid".
func AnonymizeIP(raw string) string {
	if raw == "" || raw == "unknown" {
		return "unknown"
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		ap, perr := netip.ParseAddrPort(raw)
		if perr != nil {
			return "invalid"
		}
		addr = ap.Addr()
	}
	addr = addr.Unmap().WithZone("")

	bits := ipv6Bits
	if addr.Is4() {
		bits = ipv4Bits
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
