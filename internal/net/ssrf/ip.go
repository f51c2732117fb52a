package ssrf

import "net/netip"

// extraPrivatePrefixes covers ranges netip does not classify as private.
var extraPrivatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),     // current network
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),  // IETF protocol assignments
	netip.MustParsePrefix("198.18.0.0/15"), // benchmarking
	netip.MustParsePrefix("fec0::/10"),     // deprecated site-local
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// unspecified, multicast or another non-public range. IPv4-mapped IPv6
// addresses are judged by their IPv4 form.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return true
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range extraPrivatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsPrivateIPAddress parses address and applies IsPrivateAddr. Strings that
// are not IP addresses report false.
func IsPrivateIPAddress(address string) bool {
	addr, err := netip.ParseAddr(normalizeHostname(address))
	if err != nil {
		return false
	}
	return IsPrivateAddr(addr)
}
