// Package geo owns the datacenter CIDR table and the two-tier geo cache,
// both read-mostly structures shared across every Edge HTTP goroutine.
// Lookup tables are immutable snapshots published via atomic.Pointer so
// readers never block a background refresh.
package geo

import "net"

// Kind classifies an IP address by the reserved range it falls in.
type Kind int

const (
	Public Kind = iota
	Private
	Loopback
	CGNAT
	LinkLocal
	Multicast
	Reserved
	Broadcast
	Benchmark
	Documentation
	TEREDO
	SixToFour
)

func (k Kind) String() string {
	switch k {
	case Public:
		return "Public"
	case Private:
		return "Private"
	case Loopback:
		return "Loopback"
	case CGNAT:
		return "CGNAT"
	case LinkLocal:
		return "LinkLocal"
	case Multicast:
		return "Multicast"
	case Reserved:
		return "Reserved"
	case Broadcast:
		return "Broadcast"
	case Benchmark:
		return "Benchmark"
	case Documentation:
		return "Documentation"
	case TEREDO:
		return "TEREDO"
	case SixToFour:
		return "6to4"
	}
	return "Unknown"
}

var (
	_, cgnatNet, _     = net.ParseCIDR("100.64.0.0/10")
	_, benchmarkNet, _ = net.ParseCIDR("198.18.0.0/15")
	_, teredoNet, _    = net.ParseCIDR("2001::/32")
	_, sixToFourNet, _ = net.ParseCIDR("2002::/16")
	docNets            = mustCIDRs("192.0.2.0/24", "198.51.100.0/24", "203.0.113.0/24", "2001:db8::/32")
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Classify returns the Kind for ip. Order matters: more specific ranges
// are checked before the broad Private/Reserved fallbacks.
func Classify(ip net.IP) Kind {
	if ip == nil {
		return Reserved
	}
	if ip.IsLoopback() {
		return Loopback
	}
	if ip.IsLinkLocalUnicast() {
		return LinkLocal
	}
	if ip.IsMulticast() {
		return Multicast
	}
	for _, n := range docNets {
		if n.Contains(ip) {
			return Documentation
		}
	}
	if benchmarkNet != nil && benchmarkNet.Contains(ip) {
		return Benchmark
	}
	if cgnatNet != nil && cgnatNet.Contains(ip) {
		return CGNAT
	}
	if v4 := ip.To4(); v4 != nil {
		if v4.Equal(net.IPv4bcast) {
			return Broadcast
		}
		if ip.IsPrivate() {
			return Private
		}
		if ip.IsUnspecified() {
			return Reserved
		}
		return Public
	}
	if teredoNet != nil && teredoNet.Contains(ip) {
		return TEREDO
	}
	if sixToFourNet != nil && sixToFourNet.Contains(ip) {
		return SixToFour
	}
	if ip.IsPrivate() {
		return Private
	}
	if ip.IsUnspecified() {
		return Reserved
	}
	return Public
}
