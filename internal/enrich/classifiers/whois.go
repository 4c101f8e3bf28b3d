package classifiers

import (
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/smartpixl/core/internal/enrich"
)

// Whois resolves the origin ASN and registrant organization for the client
// IP's network block via a live WHOIS query, the slowest of the Forge's
// enrichment sources. It only runs as a fallback when the MaxMind pass
// produced no ASN. Results are cached in-process since the same /24 repeats
// heavily within a short window and WHOIS servers rate-limit aggressively.
type Whois struct {
	client *whois.Client
	mu     sync.Mutex
	cache  map[string]cacheEntry
	ttl    time.Duration
}

type cacheEntry struct {
	org     string
	country string
	asn     string
	at      time.Time
}

// NewWhois builds a Whois classifier with an in-process cache of ttl
// duration (default 6h, since registrant data changes rarely).
func NewWhois(ttl time.Duration) *Whois {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Whois{
		client: whois.NewClient(),
		cache:  make(map[string]cacheEntry),
		ttl:    ttl,
	}
}

func (c *Whois) Name() string { return "whois" }

func (c *Whois) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	ip := ctx.Record.IP
	if ip == "" {
		return nil
	}
	if _, ok := ctx.Get("mmASN"); ok {
		return nil // geo already resolved an ASN; nothing to fall back for
	}
	if _, ok := ctx.Get("ipapiASN"); ok {
		return nil
	}

	if entry, ok := c.lookupCache(ip); ok {
		c.append(ctx, entry)
		return nil
	}

	raw, err := c.client.Whois(ip)
	if err != nil {
		return err
	}
	entry := parseIPWhois(raw)
	if entry.org == "" {
		// RIR responses for IP blocks are key: value text; registrar-style
		// responses still parse as a domain record.
		if parsed, perr := whoisparser.Parse(raw); perr == nil && parsed.Registrant != nil {
			entry.org = parsed.Registrant.Organization
		}
	}
	entry.at = time.Now()

	c.storeCache(ip, entry)
	c.append(ctx, entry)
	return nil
}

// parseIPWhois scans a raw RIR response (ARIN/RIPE/APNIC style key: value
// lines) for the origin ASN, organization, and country.
func parseIPWhois(raw string) cacheEntry {
	var e cacheEntry
	for _, line := range strings.Split(raw, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "originas", "origin", "origin-as", "aut-num":
			if e.asn == "" {
				e.asn = strings.ToUpper(val)
			}
		case "orgname", "org-name", "organization", "owner", "descr":
			if e.org == "" {
				e.org = val
			}
		case "country":
			if e.country == "" {
				e.country = val
			}
		}
	}
	return e
}

func (c *Whois) append(ctx *enrich.Context, entry cacheEntry) {
	ctx.Append("whoisASN", entry.asn)
	ctx.Append("whoisOrg", entry.org)
	ctx.Append("whoisCountry", strings.ToUpper(entry.country))
}

func (c *Whois) lookupCache(ip string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[ip]
	if !ok || time.Since(e.at) > c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Whois) storeCache(ip string, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[ip] = e
}
