package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address. The first parseable address of
// X-Forwarded-For wins, then X-Real-IP, then the connection's RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			if ip, ok := parseIP(candidate); ok {
				return ip
			}
		}
	}

	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(s string) (string, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
