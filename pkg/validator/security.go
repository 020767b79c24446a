package validator

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// Resolver looks up the addresses of a host
type Resolver func(host string) ([]net.IP, error)

// blockReason reports why addr must not be fetched, or "" when it may be
func blockReason(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return "localhost access not allowed"
	case addr.IsPrivate():
		return "private network access not allowed"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local access not allowed"
	case addr.IsUnspecified():
		return "unspecified address not allowed"
	}
	return ""
}

// IsBlockedIP reports whether ip is loopback, private, link-local or
// unspecified. Unparseable input is not blocked.
func IsBlockedIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return blockReason(addr) != ""
}

// validateHTTPURI rejects http(s) URIs whose host is, or resolves to, a
// blocked address. IP literals are checked without resolving.
func validateHTTPURI(uri string, resolve Resolver) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("expected http or https scheme")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URI has no host")
	}

	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = append(addrs, addr)
	} else {
		ips, err := resolve(host)
		if err != nil {
			return fmt.Errorf("failed to resolve hostname: %w", err)
		}
		for _, ip := range ips {
			if addr, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, addr)
			}
		}
	}

	for _, addr := range addrs {
		if reason := blockReason(addr); reason != "" {
			return fmt.Errorf("access denied: %s resolves to %s (%s)", host, addr.Unmap(), reason)
		}
	}
	return nil
}
