package capture

import (
	"net"
	"net/url"
	"time"

	"github.com/smartpixl/core/internal/geo"
	"github.com/smartpixl/core/internal/stability"
)

// Services wires the process-wide Edge-side classifiers into a single
// HeaderEnricher: fingerprint stability, subnet velocity,
// datacenter/IP-class/geo lookup. Constructed once at
// startup and shared (by reference, never copied) across every HTTP
// handler goroutine.
type Services struct {
	Stability *stability.Tracker
	Velocity  *stability.Velocity
	CIDR      *geo.CIDRTable
	GeoCache  *geo.Cache
}

// Enrich implements HeaderEnricher. It never returns an error: a missing
// value is simply omitted from the token list, never appended empty.
func (s *Services) Enrich(ip net.IP, query string) []Token {
	now := time.Now()
	var toks []Token

	fpHash := stability.FNVHash(query)
	grade, count := s.Stability.Observe(ip.String(), fpHash, now)
	toks = append(toks,
		Token{Name: "_srv_stability", Value: grade.String()},
		Token{Name: "_srv_stabilityCount", Value: itoa(count)},
	)

	_, rapid := s.Velocity.Observe(ip.String(), now)
	if rapid {
		toks = append(toks, Token{Name: "_srv_rapidFire", Value: "1"})
	}

	if provider, ok := s.CIDR.Lookup(ip); ok {
		toks = append(toks, Token{Name: "_srv_datacenter", Value: provider})
	}

	kind := geo.Classify(ip)
	toks = append(toks, Token{Name: "_srv_ipType", Value: kind.String()})

	if kind == geo.Public {
		if info, ok := s.GeoCache.Get(ip.String()); ok {
			if info.Country != "" {
				toks = append(toks, Token{Name: "_srv_geoCC", Value: info.Country})
			}
			if info.City != "" {
				toks = append(toks, Token{Name: "_srv_geoCity", Value: info.City})
			}
			if info.Timezone != "" {
				toks = append(toks, Token{Name: "_srv_geoTZ", Value: info.Timezone})
			}
			if info.ISP != "" {
				toks = append(toks, Token{Name: "_srv_geoISP", Value: info.ISP})
			}
		}
	}
	return toks
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EncodeTokens URL-encodes each token and joins them with '&', ready to
// append to the record's query string.
func EncodeTokens(toks []Token) string {
	if len(toks) == 0 {
		return ""
	}
	v := make(url.Values, len(toks))
	order := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, exists := v[t.Name]; !exists {
			order = append(order, t.Name)
		}
		v.Set(t.Name, t.Value)
	}
	var out string
	for i, name := range order {
		if i > 0 {
			out += "&"
		}
		out += url.QueryEscape(name) + "=" + url.QueryEscape(v.Get(name))
	}
	return out
}
