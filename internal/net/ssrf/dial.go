package ssrf

import (
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// DialControl is a net.Dialer Control hook that refuses connections to
// private addresses. It runs after DNS resolution, so it also catches names
// that resolve inward and redirects to such names.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return blocked(address, "malformed address")
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return blocked(address, "unresolved address")
	}
	if IsPrivateAddr(addr) {
		return blocked(address, "private address")
	}
	return nil
}

// NewTransport returns an HTTP transport whose connections pass
// DialControl. Proxies are disabled since they would bypass the check.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   DialControl,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return transport
}
