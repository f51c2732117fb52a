package ssrf

import (
	"net/netip"
	"strings"
)

// blockedHostnames are refused before any DNS lookup.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata":                 true,
}

// dangerousSuffixes mark names that only resolve inside a private network.
var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".home.arpa",
}

// normalizeHostname lowercases, trims a trailing dot and unwraps IPv6
// brackets.
func normalizeHostname(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	normalized = strings.TrimSuffix(normalized, ".")
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

// IsBlockedHostname reports whether hostname is refused by name alone.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return false
	}
	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// CheckHost refuses blocked names and private address literals. Names that
// resolve to private addresses are caught later, at dial time.
func CheckHost(hostname string) error {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return blocked(hostname, "empty host")
	}
	if IsBlockedHostname(normalized) {
		return blocked(hostname, "internal hostname")
	}
	if addr, err := netip.ParseAddr(normalized); err == nil && IsPrivateAddr(addr) {
		return blocked(hostname, "private address")
	}
	return nil
}
