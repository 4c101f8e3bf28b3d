// Package stability implements the two-tier, per-IP stability statistics:
// a 15-minute sliding window of distinct fingerprint hashes and a 24-hour
// window of total observations, mutated only by the Edge's parse path.
// Windows live in a map of per-IP entries under sharded locks so
// concurrent HTTP goroutines contend only within their own shard.
package stability

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// Grade is the fingerprint-stability classifier's verdict.
type Grade int

const (
	Unknown Grade = iota
	OK
	Medium
	High
)

func (g Grade) String() string {
	switch g {
	case OK:
		return "ok"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "unknown"
}

type observation struct {
	fpHash uint64
	at     time.Time
}

type ipRecord struct {
	mu    sync.Mutex
	short []observation // 15-minute window, evicted lazily
	long  []observation // 24-hour window, evicted lazily
}

// Tracker maintains per-IP stability windows. Safe for concurrent use.
type Tracker struct {
	shortWindow time.Duration
	longWindow  time.Duration

	shards [shardCount]struct {
		mu sync.Mutex
		m  map[string]*ipRecord
	}
}

func NewTracker(shortWindow, longWindow time.Duration) *Tracker {
	t := &Tracker{shortWindow: shortWindow, longWindow: longWindow}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*ipRecord)
	}
	return t
}

func shardFor(ip string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return h.Sum32() % shardCount
}

func (t *Tracker) recordFor(ip string) *ipRecord {
	s := &t.shards[shardFor(ip)]
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[ip]
	if !ok {
		rec = &ipRecord{}
		s.m[ip] = rec
	}
	return rec
}

// Observe records a fingerprint hash seen from ip at now, evicts entries
// that have aged out of both windows, and returns the stability grade plus
// the long-window observation count.
func (t *Tracker) Observe(ip string, fpHash uint64, now time.Time) (Grade, int) {
	rec := t.recordFor(ip)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	shortCut := now.Add(-t.shortWindow)
	longCut := now.Add(-t.longWindow)
	rec.short = evict(rec.short, shortCut)
	rec.long = evict(rec.long, longCut)

	obs := observation{fpHash: fpHash, at: now}
	rec.short = append(rec.short, obs)
	rec.long = append(rec.long, obs)

	distinct := distinctHashes(rec.short)
	count := len(rec.long)

	var grade Grade
	switch {
	case distinct <= 1:
		grade = OK
	case distinct <= 3:
		grade = Medium
	default:
		grade = High
	}
	return grade, count
}

// Evict removes the IP's record entirely once both windows are empty,
// releasing the shard map entry. Intended to run from a periodic sweep.
func (t *Tracker) Evict(ip string, now time.Time) (removed bool) {
	s := &t.shards[shardFor(ip)]
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[ip]
	if !ok {
		return false
	}
	rec.mu.Lock()
	rec.short = evict(rec.short, now.Add(-t.shortWindow))
	rec.long = evict(rec.long, now.Add(-t.longWindow))
	empty := len(rec.short) == 0 && len(rec.long) == 0
	rec.mu.Unlock()
	if empty {
		delete(s.m, ip)
		return true
	}
	return false
}

// Sweep walks every shard evicting IPs whose windows have gone empty.
func (t *Tracker) Sweep(now time.Time) (evicted int) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for ip, rec := range s.m {
			rec.mu.Lock()
			rec.short = evict(rec.short, now.Add(-t.shortWindow))
			rec.long = evict(rec.long, now.Add(-t.longWindow))
			empty := len(rec.short) == 0 && len(rec.long) == 0
			rec.mu.Unlock()
			if empty {
				delete(s.m, ip)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return
}

func evict(obs []observation, cutoff time.Time) []observation {
	i := 0
	for i < len(obs) && obs[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return obs
	}
	return append(obs[:0], obs[i:]...)
}

func distinctHashes(obs []observation) int {
	if len(obs) <= 1 {
		return len(obs)
	}
	seen := make(map[uint64]struct{}, len(obs))
	for _, o := range obs {
		seen[o.fpHash] = struct{}{}
	}
	return len(seen)
}

// FNVHash is a small helper so callers building a fingerprint from several
// query parameters can produce a single uint64 without importing
// hash/fnv themselves.
func FNVHash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
