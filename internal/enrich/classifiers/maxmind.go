package classifiers

import (
	"net"

	geoip2 "github.com/oschwald/geoip2-golang"

	"github.com/smartpixl/core/internal/enrich"
)

// MaxMind resolves country/city/ASN/ISP from a local GeoLite2/GeoIP2
// database (the Edge-side geo.Cache is a hot-path approximation; this
// classifier is the Forge's slower, ground-truth pass).
type MaxMind struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

// NewMaxMind opens the city and ASN database files. asnPath may be empty
// if only city data is available.
func NewMaxMind(cityPath, asnPath string) (*MaxMind, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, err
	}
	m := &MaxMind{city: city}
	if asnPath != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			city.Close()
			return nil, err
		}
		m.asn = asn
	}
	return m, nil
}

func (m *MaxMind) Close() error {
	if m.asn != nil {
		m.asn.Close()
	}
	return m.city.Close()
}

func (m *MaxMind) Name() string { return "maxmind" }

func (m *MaxMind) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	ip := net.ParseIP(ctx.Record.IP)
	if ip == nil {
		return nil
	}
	rec, err := m.city.City(ip)
	if err != nil {
		return err
	}
	ctx.Append("mmCC", rec.Country.IsoCode)
	if name, ok := rec.City.Names["en"]; ok {
		ctx.Append("mmCity", name)
	}
	ctx.Append("mmTimezone", rec.Location.TimeZone)

	if m.asn != nil {
		asnRec, err := m.asn.ASN(ip)
		if err == nil && asnRec.AutonomousSystemNumber != 0 {
			ctx.Append("mmASN", "AS"+itoa(int(asnRec.AutonomousSystemNumber)))
			ctx.Append("mmASNOrg", asnRec.AutonomousSystemOrganization)
		}
	}
	return nil
}
