package geo

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Info is the geo-enrichment payload attached to a record: country, city,
// timezone, and ISP, sourced from whichever tier (or enricher) populated
// it.
type Info struct {
	Country  string
	City     string
	Timezone string
	ISP      string
}

type ttlEntry struct {
	info    Info
	expires time.Time
}

// Cache is a two-tier geo cache: a small hot LRU
// for recently-seen IPs and a larger TTL-bounded map for everything else.
// Writes (populating a miss) take a short critical section; it is
// read-mostly the rest of the time.
type Cache struct {
	hot *lru.Cache[string, Info]

	mu  sync.RWMutex
	ttl map[string]ttlEntry
	dur time.Duration
}

func NewCache(hotSize int, ttl time.Duration) *Cache {
	hot, _ := lru.New[string, Info](hotSize)
	return &Cache{
		hot: hot,
		ttl: make(map[string]ttlEntry),
		dur: ttl,
	}
}

// Get returns cached info for ip, checking the hot tier first.
func (c *Cache) Get(ip string) (Info, bool) {
	if info, ok := c.hot.Get(ip); ok {
		return info, true
	}
	c.mu.RLock()
	e, ok := c.ttl[ip]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return Info{}, false
	}
	c.hot.Add(ip, e.info)
	return e.info, true
}

// Put populates both tiers on a cache miss.
func (c *Cache) Put(ip string, info Info) {
	c.hot.Add(ip, info)
	c.mu.Lock()
	c.ttl[ip] = ttlEntry{info: info, expires: time.Now().Add(c.dur)}
	c.mu.Unlock()
}

// Sweep evicts expired TTL-tier entries.
func (c *Cache) Sweep(now time.Time) (evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.ttl {
		if now.After(e.expires) {
			delete(c.ttl, k)
			evicted++
		}
	}
	return
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ttl)
}
