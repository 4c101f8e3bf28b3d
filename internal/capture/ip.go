package capture

import (
	"net"
	"net/http"
	"strings"
)

// ipHeaderOrder is the proxy-header precedence list: first non-empty
// header wins, leftmost token of a comma list is taken.
var ipHeaderOrder = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"True-Client-IP",
	"CF-Connecting-IP",
}

// ExtractIP applies the proxy-header precedence order, falling back to the
// socket peer address, and flattens IPv6-mapped IPv4 to dotted-quad.
// Parse failure on every header falls through to the socket peer.
func ExtractIP(r *http.Request) net.IP {
	for _, name := range ipHeaderOrder {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		if tok := firstToken(v); tok != "" {
			if ip := parseIP(tok); ip != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != nil {
		return ip
	}
	return net.IPv4(127, 0, 0, 1)
}

func firstToken(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// parseIP flattens IPv6-mapped IPv4 addresses ("::ffff:a.b.c.d") down to
// dotted-quad form.
func parseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
