package classifiers

import (
	"os"
	"strings"

	uaparser "github.com/ua-parser/uap-go/uaparser"
	"gopkg.in/yaml.v3"

	"github.com/smartpixl/core/internal/enrich"
)

// UAParse decomposes the raw user-agent string into browser/OS/device
// family and version in two passes: the ua-parser regex database first,
// then a supplemental device table that fills whatever brand/model fields
// the regex pass left generic. Later-pass values never overwrite
// earlier-pass ones; they only fill gaps.
type UAParse struct {
	parser  *uaparser.Parser
	devices []deviceEntry
}

// NewUAParse loads the regexes.yaml pattern database ua-parser ships and
// the supplemental device table from devicesPath (skipped when empty).
func NewUAParse(regexesPath, devicesPath string) (*UAParse, error) {
	p, err := uaparser.New(regexesPath)
	if err != nil {
		return nil, err
	}
	c := &UAParse{parser: p}
	if devicesPath != "" {
		c.devices, err = loadDeviceTable(devicesPath)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *UAParse) Name() string { return "uaparse" }

func (c *UAParse) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	if snap.UA == "" {
		return nil
	}
	client := c.parser.Parse(snap.UA)

	brand := client.Device.Brand
	model := client.Device.Model
	if brand == "" || model == "" {
		b, m := supplementalDevice(c.devices, snap.UA)
		if brand == "" {
			brand = b
		}
		if model == "" {
			model = m
		}
	}

	ctx.Append("browser", client.UserAgent.Family)
	ctx.Append("browserVer", joinVersion(client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch))
	ctx.Append("os", client.Os.Family)
	ctx.Append("osVer", joinVersion(client.Os.Major, client.Os.Minor, client.Os.Patch))
	ctx.Append("deviceType", deviceType(snap.UA, client.Device.Family))
	ctx.Append("deviceBrand", brand)
	ctx.Append("deviceModel", model)
	return nil
}

// deviceType buckets the UA into bot/mobile/tablet/desktop. The regex
// database reports a family, not a form factor, so the bucket is derived
// from the family plus well-known UA markers.
func deviceType(ua, family string) string {
	l := strings.ToLower(ua)
	switch {
	case family == "Spider" || strings.Contains(l, "bot") || strings.Contains(l, "crawler"):
		return "bot"
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		return "tablet"
	case strings.Contains(l, "mobile") || strings.Contains(l, "iphone") || strings.Contains(l, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

// deviceEntry is one row of the second-pass device table: a marker
// substring plus the brand/model it resolves to. Table order is match
// order; first match wins.
type deviceEntry struct {
	Marker string `yaml:"marker"`
	Brand  string `yaml:"brand"`
	Model  string `yaml:"model"`
}

type deviceFile struct {
	Devices []deviceEntry `yaml:"devices"`
}

// loadDeviceTable reads the supplemental device table from path,
// lower-casing markers once at load time.
func loadDeviceTable(path string) ([]deviceEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f deviceFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	for i := range f.Devices {
		f.Devices[i].Marker = strings.ToLower(f.Devices[i].Marker)
	}
	return f.Devices, nil
}

func supplementalDevice(devices []deviceEntry, ua string) (brand, model string) {
	l := strings.ToLower(ua)
	for _, d := range devices {
		if strings.Contains(l, d.Marker) {
			return d.Brand, d.Model
		}
	}
	return "", ""
}

func joinVersion(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			break
		}
		if out != "" {
			out += "."
		}
		out += p
	}
	return out
}
