package stability

import (
	"sync"
	"time"
)

// Velocity tracks IPs-per-/24 in a rolling window and flags rapid-fire
// repeats from the same IP. Shares the sharded-lock shape used by Tracker.
type Velocity struct {
	window   time.Duration
	rapidGap time.Duration

	shards [shardCount]struct {
		mu sync.Mutex
		m  map[string]*subnetRecord
	}
	lastSeen [shardCount]struct {
		mu sync.Mutex
		m  map[string]time.Time
	}
}

type subnetRecord struct {
	mu   sync.Mutex
	seen []time.Time
}

func NewVelocity(window, rapidGap time.Duration) *Velocity {
	v := &Velocity{window: window, rapidGap: rapidGap}
	for i := range v.shards {
		v.shards[i].m = make(map[string]*subnetRecord)
		v.lastSeen[i].m = make(map[string]time.Time)
	}
	return v
}

// slash24 returns the /24 key for an IPv4-mapped address, or the full
// address string for anything else (IPv6 subnet velocity is out of scope
// of the distilled catalog but degrades gracefully rather than panicking).
func slash24(ip string) string {
	dots := 0
	for i := 0; i < len(ip); i++ {
		if ip[i] == '.' {
			dots++
			if dots == 3 {
				return ip[:i]
			}
		}
	}
	return ip
}

// Observe records ip at now and returns (ips-in-window-for-/24, rapidFire).
func (v *Velocity) Observe(ip string, now time.Time) (count int, rapidFire bool) {
	subnet := slash24(ip)
	s := &v.shards[shardFor(subnet)]
	s.mu.Lock()
	rec, ok := s.m[subnet]
	if !ok {
		rec = &subnetRecord{}
		s.m[subnet] = rec
	}
	s.mu.Unlock()

	rec.mu.Lock()
	cutoff := now.Add(-v.window)
	i := 0
	for i < len(rec.seen) && rec.seen[i].Before(cutoff) {
		i++
	}
	rec.seen = append(rec.seen[:0], rec.seen[i:]...)
	rec.seen = append(rec.seen, now)
	count = len(rec.seen)
	rec.mu.Unlock()

	ls := &v.lastSeen[shardFor(ip)]
	ls.mu.Lock()
	if prev, ok := ls.m[ip]; ok && now.Sub(prev) < v.rapidGap {
		rapidFire = true
	}
	ls.m[ip] = now
	ls.mu.Unlock()
	return
}
