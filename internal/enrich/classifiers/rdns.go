package classifiers

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartpixl/core/internal/enrich"
)

type cloudHostnamesFile struct {
	Hostnames []string `yaml:"hostnames"`
}

// LoadCloudHostnames reads the cloud/hosting-provider hostname substring
// list from path for use as NewRDNS's cloudHostnames argument.
func LoadCloudHostnames(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f cloudHostnamesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f.Hostnames, nil
}

// RDNS resolves a PTR record for the client IP and flags hostnames that
// match known cloud/hosting-provider naming conventions, catching
// datacenter traffic the CIDR table missed (CIDR ranges lag provider churn;
// a live PTR lookup does not).
type RDNS struct {
	resolver *net.Resolver
	timeout  time.Duration
	cloud    []string // lower-cased hostname substrings
}

// NewRDNS builds an RDNS classifier. cloudHostnames is a substring list
// like "amazonaws.com", "googleusercontent.com", "core.windows.net".
func NewRDNS(timeout time.Duration, cloudHostnames []string) *RDNS {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	lc := make([]string, len(cloudHostnames))
	for i, h := range cloudHostnames {
		lc[i] = strings.ToLower(h)
	}
	return &RDNS{resolver: net.DefaultResolver, timeout: timeout, cloud: lc}
}

func (c *RDNS) Name() string { return "rdns" }

func (c *RDNS) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	ip := ctx.Record.IP
	if ip == "" {
		return nil
	}
	lctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	names, err := c.resolver.LookupAddr(lctx, ip)
	if err != nil || len(names) == 0 {
		return nil
	}
	host := strings.TrimSuffix(strings.ToLower(names[0]), ".")
	ctx.Append("rdns", host)
	for _, marker := range c.cloud {
		if strings.Contains(host, marker) {
			ctx.Append("rdnsCloud", marker)
			break
		}
	}
	return nil
}
