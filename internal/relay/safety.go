package relay

import (
	"net"
	"net/url"
	"strings"
)

// IsRelayURLSafe validates that a relay URL is safe to connect to.
// Allows localhost for development but blocks other private IP ranges.
func IsRelayURLSafe(relayURL string) bool {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}

	host := parsed.Hostname()
	if host == "" {
		return false
	}

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts may still be valid external names,
		// but obviously internal ones are blocked
		if host[len(host)-1] == '.' ||
			strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
			return false
		}
		return true
	}

	for _, ip := range ips {
		if !isRelayIPSafe(ip) {
			return false
		}
	}

	return true
}

// isRelayIPSafe checks if an IP is safe for relay connections.
// Loopback is allowed (local development relays), everything else
// private or special-purpose is not.
func isRelayIPSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}

	if ip.IsLoopback() {
		return true
	}

	if ip.IsPrivate() {
		return false
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}

	if ip.IsUnspecified() {
		return false
	}

	// Cloud metadata endpoint
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return false
	}

	if ip.IsMulticast() {
		return false
	}

	return true
}
