// Package fingerprint tracks device fingerprints across records for the
// cross-customer, session-stitching, and replay-detection classifiers.
// It reuses the sharded-lock, sliding-window map pattern from
// internal/stability rather than inventing a new one.
package fingerprint

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 64

type sighting struct {
	company string
	at      time.Time
}

type fpRecord struct {
	mu        sync.Mutex
	sessionID string
	hitCount  int
	lastSeen  time.Time
	sightings []sighting
}

// Tracker holds per-fingerprint state: session assignment and
// cross-customer sighting history. Replay detection lives in ReplayCache.
type Tracker struct {
	sessionGap  time.Duration
	crossWindow time.Duration
	shards      [shardCount]struct {
		mu sync.Mutex
		m  map[string]*fpRecord
	}
}

// NewTracker builds a Tracker. sessionGap is the inactivity timeout after
// which a fingerprint is assigned a new session id (default 10 minutes).
// crossWindow is how long a
// fingerprint's cross-customer sightings are retained (default 24h).
func NewTracker(sessionGap, crossWindow time.Duration) *Tracker {
	if sessionGap <= 0 {
		sessionGap = 10 * time.Minute
	}
	if crossWindow <= 0 {
		crossWindow = 24 * time.Hour
	}
	t := &Tracker{sessionGap: sessionGap, crossWindow: crossWindow}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*fpRecord)
	}
	return t
}

func shardFor(fp string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(fp); i++ {
		h ^= uint32(fp[i])
		h *= 16777619
	}
	return h % shardCount
}

func (t *Tracker) recordFor(fp string) *fpRecord {
	s := &t.shards[shardFor(fp)]
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[fp]
	if !ok {
		r = &fpRecord{}
		s.m[fp] = r
	}
	return r
}

// Session returns the session id for fp and the 1-based sequence number of
// this hit within that session (the _srv_sessionHit token), minting a
// fresh session if this is the first sighting
// or the gap since the last sighting exceeds sessionGap.
func (t *Tracker) Session(fp string, now time.Time) (sessionID string, hitSeq int, isNew bool) {
	if fp == "" {
		return "", 0, false
	}
	r := t.recordFor(fp)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == "" || now.Sub(r.lastSeen) > t.sessionGap {
		r.sessionID = newSessionID()
		r.hitCount = 0
		isNew = true
	}
	r.hitCount++
	r.lastSeen = now
	return r.sessionID, r.hitCount, isNew
}

// CrossCustomer records a sighting of fp under company and returns the set
// of distinct other companies that have seen the same fingerprint within
// crossWindow.
func (t *Tracker) CrossCustomer(fp, company string, now time.Time) []string {
	if fp == "" {
		return nil
	}
	r := t.recordFor(fp)
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-t.crossWindow)
	kept := r.sightings[:0]
	seenCompanies := map[string]bool{company: true}
	for _, s := range r.sightings {
		if s.at.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
		if s.company != company {
			seenCompanies[s.company] = true
		}
	}
	kept = append(kept, sighting{company: company, at: now})
	r.sightings = kept

	others := make([]string, 0, len(seenCompanies)-1)
	for c := range seenCompanies {
		if c != company {
			others = append(others, c)
		}
	}
	return others
}

// ReplayCache is the Forge-internal replay cache: keyed by the quantized
// mouse-path hash (not the fingerprint), it records
// the first fingerprint seen with a given path so a later record replaying
// the exact same path under a different fingerprint can be flagged as a
// scripted replay rather than an independent real user. Entries are
// evicted after 1h of inactivity.
type ReplayCache struct {
	mu sync.Mutex
	m  map[uint64]*replayEntry
}

type replayEntry struct {
	firstFP   string
	firstSeen time.Time
	lastSeen  time.Time
	count     int
}

func NewReplayCache() *ReplayCache {
	return &ReplayCache{m: make(map[uint64]*replayEntry)}
}

// Check records a sighting of pathHash under fp and reports whether this
// exact path has already been seen under a different fingerprint. The
// same path under the same fingerprint is just a returning visitor; under
// a different one it is replayed telemetry.
func (c *ReplayCache) Check(pathHash uint64, fp string, now time.Time) (isReplay bool, firstFP string, count int) {
	if pathHash == 0 {
		return false, "", 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[pathHash]
	if !ok {
		c.m[pathHash] = &replayEntry{firstFP: fp, firstSeen: now, lastSeen: now, count: 1}
		return false, "", 1
	}
	e.lastSeen = now
	e.count++
	if fp != "" && fp != e.firstFP {
		return true, e.firstFP, e.count
	}
	return false, e.firstFP, e.count
}

// Sweep evicts path hashes inactive for longer than 1h.
func (c *ReplayCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	cutoff := now.Add(-time.Hour)
	for h, e := range c.m {
		if e.lastSeen.Before(cutoff) {
			delete(c.m, h)
			removed++
		}
	}
	return removed
}

// Sweep evicts sighting history older than crossWindow across all shards;
// intended to run on the same periodic cadence as the stability tracker's
// sweep. Returns the number of fingerprints removed entirely (no recent
// activity at all).
func (t *Tracker) Sweep(now time.Time) int {
	removed := 0
	cutoff := now.Add(-t.crossWindow)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for fp, r := range s.m {
			r.mu.Lock()
			stale := r.lastSeen.Before(cutoff)
			r.mu.Unlock()
			if stale {
				delete(s.m, fp)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func newSessionID() string {
	return uuid.NewString()
}
