package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyList holds the addresses and CIDR ranges whose forwarding headers are trusted.
type ProxyList []netip.Prefix

// ParseProxyList parses entries such as "127.0.0.1" or "10.0.0.0/8". Invalid entries are
// skipped and returned separately so the caller can report them.
func ParseProxyList(entries []string) (ProxyList, []string) {
	var (
		list    ProxyList
		invalid []string
	)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				invalid = append(invalid, e)
				continue
			}
			list = append(list, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			invalid = append(invalid, e)
			continue
		}
		a = a.Unmap()
		list = append(list, netip.PrefixFrom(a, a.BitLen()))
	}
	return list, invalid
}

// Contains reports whether ip is covered by the list.
func (l ProxyList) Contains(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range l {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ExtractIP extracts the IP address from a "host:port" string.
// If no port is present, returns the input as-is.
func ExtractIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// ClientIP returns the request's client address. X-Forwarded-For and X-Real-IP are only
// honoured when the immediate peer is a trusted proxy.
func ClientIP(r *http.Request, trusted ProxyList) string {
	remoteIP := ExtractIP(r.RemoteAddr)
	if !trusted.Contains(remoteIP) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remoteIP
}
