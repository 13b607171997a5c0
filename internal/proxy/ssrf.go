package proxy

import (
	"fmt"
	"net"
	"strings"
)

// privateBlocks lists the CIDR ranges treated as local/private for the
// purposes of NO_PROXY computation and ValidatePublicHostname, adapted from the private-CIDR classification in
// haasonsaas-nexus's SSRF guard (loopback, link-local, and the three RFC
// 1918 ranges, plus IPv6 equivalents).
var privateBlocks = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("proxy: invalid CIDR %q: %v", c, err))
		}
		out = append(out, n)
	}
	return out
}

// blockedHostnames are local names that never resolve to a safe upstream,
// checked before DNS resolution so a sandboxed command can't route around
// the CIDR check with "localhost" or a bare metadata hostname.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.google":          true,
	"instance-data":            true,
	"169.254.169.254":          true,
}

// IsPrivateIP reports whether ip falls in a loopback, link-local, or
// private-use range.
func IsPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// IsBlockedHostname reports whether host is a known local/metadata name,
// independent of what it might resolve to.
func IsBlockedHostname(host string) bool {
	return blockedHostnames[strings.ToLower(host)]
}

// ValidatePublicHostname resolves host and reports an error unless every
// resolved address is a routable, non-private address. The Proxy Gateway's
// HTTP and SOCKS5 handlers do not call it; they decide only through
// checkHost.
func ValidatePublicHostname(host string) error {
	if IsBlockedHostname(host) {
		return fmt.Errorf("proxy: host %q is a blocked local/metadata name", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("proxy: host %q resolves to a private address", host)
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("proxy: resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return fmt.Errorf("proxy: host %q resolves to private address %s", host, ip)
		}
	}
	return nil
}

// NoProxyCIDRs returns the CIDR strings injected into NO_PROXY alongside
// loopback, so tooling inside the sandbox never routes local traffic
// through the gateway.
func NoProxyCIDRs() []string {
	out := make([]string, len(privateBlocks))
	for i, b := range privateBlocks {
		out[i] = b.String()
	}
	return out
}
