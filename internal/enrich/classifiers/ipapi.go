package classifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartpixl/core/internal/enrich"
)

// GeoResult is one resolved external-provider lookup, the unit both the
// in-memory known-IP set and the warehouse-persisted store hold.
type GeoResult struct {
	CountryCode string
	ISP         string
	Reverse     string
	ASN         string
	Proxy       bool
	Mobile      bool
}

// KnownIPStore persists resolved lookups in the warehouse's geo table so
// a Forge restart does not re-pay the provider for IPs it has already
// seen. Implemented by internal/warehouse.GeoStore.
type KnownIPStore interface {
	Lookup(ctx context.Context, ip string) (res GeoResult, fetchedAt time.Time, ok bool, err error)
	Upsert(ctx context.Context, ip string, res GeoResult, fetchedAt time.Time) error
}

const defaultStaleAfter = 90 * 24 * time.Hour

// IPAPI calls an external paid IP-reputation/geolocation HTTP API as a
// secondary source, used to cross-check the MaxMind result and to pick up
// proxy/VPN flags MaxMind's city database doesn't carry. Known IPs are
// served from an in-process set backed by the warehouse-persisted Store
// and only re-fetched once the stored row is stale (90 days by default);
// fresh fetches are written back through the Store. Outbound calls are
// throttled to the provider's rate limit (default 30/min) by a
// token-bucket limiter so a traffic spike degrades to "no tokens appended"
// rather than getting the key banned. Lookups share one *http.Client with
// an explicit timeout, never the zero-value client.
type IPAPI struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter

	// Store is the optional persisted known-IP set; StaleAfter is how old
	// a stored row may be before the provider is consulted again.
	Store      KnownIPStore
	StaleAfter time.Duration

	mu    sync.Mutex
	known map[string]knownIP
}

type knownIP struct {
	res GeoResult
	at  time.Time
}

// NewIPAPI builds an IPAPI classifier. baseURL defaults to ip-api.com's
// free JSON endpoint if empty. ratePerMin throttles outbound calls to the
// provider's quota (default 30/min).
func NewIPAPI(baseURL, apiKey string, timeout time.Duration, ratePerMin int) *IPAPI {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json/"
	}
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	if ratePerMin <= 0 {
		ratePerMin = 30
	}
	return &IPAPI{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin),
		StaleAfter: defaultStaleAfter,
		known:      make(map[string]knownIP),
	}
}

type ipapiResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	ISP         string `json:"isp"`
	Proxy       bool   `json:"proxy"`
	Hosting     bool   `json:"hosting"`
	Mobile      bool   `json:"mobile"`
	Reverse     string `json:"reverse"`
	AS          string `json:"as"`
}

func (c *IPAPI) Name() string { return "ipapi" }

// Classify resolves the record's IP through, in order: the in-process
// known-IP set, the persisted Store, then the provider. It silently skips
// the provider call (no tokens appended, no error) when the rate-limit
// bucket is exhausted: a throttled network enricher degrades the same way
// a timed-out one does.
func (c *IPAPI) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	ip := ctx.Record.IP
	if ip == "" {
		return nil
	}
	now := time.Now()

	if res, ok := c.knownFresh(ip, now); ok {
		c.appendResult(ctx, res)
		return nil
	}
	if c.Store != nil {
		reqCtx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
		res, at, ok, err := c.Store.Lookup(reqCtx, ip)
		cancel()
		if err == nil && ok && now.Sub(at) < c.staleAfter() {
			c.remember(ip, res, at)
			c.appendResult(ctx, res)
			return nil
		}
	}

	if !c.limiter.Allow() {
		return nil
	}
	res, ok, err := c.fetch(ip)
	if err != nil || !ok {
		return err
	}
	c.remember(ip, res, now)
	c.appendResult(ctx, res)

	if c.Store != nil {
		reqCtx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
		defer cancel()
		if err := c.Store.Upsert(reqCtx, ip, res, now); err != nil {
			return fmt.Errorf("ipapi: geo write-back failed: %w", err)
		}
	}
	return nil
}

// fetch performs the live provider call. ok=false means the provider
// answered but declined the IP (private range, quota message, etc.), which
// is not cacheable and not an error.
func (c *IPAPI) fetch(ip string) (GeoResult, bool, error) {
	reqCtx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
	defer cancel()
	url := fmt.Sprintf("%s%s?key=%s&fields=status,countryCode,isp,proxy,hosting,mobile,reverse,as", c.baseURL, ip, c.apiKey)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return GeoResult{}, false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return GeoResult{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return GeoResult{}, false, fmt.Errorf("ipapi: unexpected status %d", resp.StatusCode)
	}
	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GeoResult{}, false, err
	}
	if body.Status != "success" {
		return GeoResult{}, false, nil
	}
	return GeoResult{
		CountryCode: body.CountryCode,
		ISP:         body.ISP,
		Reverse:     body.Reverse,
		ASN:         body.AS,
		Proxy:       body.Proxy || body.Hosting,
		Mobile:      body.Mobile,
	}, true, nil
}

func (c *IPAPI) appendResult(ctx *enrich.Context, res GeoResult) {
	ctx.Append("ipapiCC", res.CountryCode)
	ctx.Append("ipapiISP", res.ISP)
	ctx.Append("ipapiReverse", res.Reverse)
	ctx.Append("ipapiASN", res.ASN)
	if res.Proxy {
		ctx.Append("ipapiProxy", "true")
	}
	if res.Mobile {
		ctx.Append("ipapiMobile", "true")
	}
}

func (c *IPAPI) staleAfter() time.Duration {
	if c.StaleAfter > 0 {
		return c.StaleAfter
	}
	return defaultStaleAfter
}

func (c *IPAPI) knownFresh(ip string, now time.Time) (GeoResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.known[ip]
	if !ok || now.Sub(e.at) >= c.staleAfter() {
		return GeoResult{}, false
	}
	return e.res, true
}

func (c *IPAPI) remember(ip string, res GeoResult, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Bound the in-process set: evict stale entries once it grows large;
	// the persisted Store remains the durable copy.
	if len(c.known) >= 65536 {
		now := time.Now()
		for k, e := range c.known {
			if now.Sub(e.at) >= c.staleAfter() {
				delete(c.known, k)
			}
		}
	}
	c.known[ip] = knownIP{res: res, at: at}
}
