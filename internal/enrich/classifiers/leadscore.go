package classifiers

import (
	"github.com/smartpixl/core/internal/enrich"
)

// LeadScore is the final classifier in the catalog: a weighted sum of
// positive human signals (max 100). It only reads
// the record's original query string and tokens earlier classifiers
// already appended; it introduces no new signal of its own.
type LeadScore struct{}

func NewLeadScore() *LeadScore { return &LeadScore{} }

func (c *LeadScore) Name() string { return "leadscore" }

func (c *LeadScore) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	score := 0

	// Residential means a public IP that is not in a known datacenter
	// range; cloud-hosted clients are still Public by classification.
	if ipType, ok := ctx.Get("ipType"); ok && ipType == "Public" {
		if _, dc := ctx.Get("datacenter"); !dc {
			score += 15
		}
	}
	if stab, ok := ctx.Get("stability"); ok && stab == "ok" {
		score += 12
	}
	if snap.MouseEntropy > 2.0 {
		score += 12
	}
	if len(snap.Fonts) >= 3 {
		score += 10
	}
	if snap.CanvasFingerprint != "" && snap.CanvasFingerprint != "blocked" {
		score += 8
	}
	if tzMatch, ok := ctx.Get("tzMatch"); ok && tzMatch == "true" {
		score += 8
	}
	if sessionHit, ok := ctx.Get("sessionHit"); ok && tokenInt0(sessionHit) >= 2 {
		score += 10
	}
	if bot, ok := ctx.Get("knownBot"); !ok || bot != "true" {
		score += 15
	}
	if n, ok := ctx.Get("contradictions"); !ok || tokenInt0(n) == 0 {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	ctx.Append("leadScore", itoa(score))
	ctx.Append("leadBucket", bucketFor(score))
	return nil
}

func bucketFor(score int) string {
	switch {
	case score >= 75:
		return "HIGH"
	case score >= 40:
		return "MID"
	default:
		return "LOW"
	}
}

// tokenInt0 parses s as an int, defaulting to 0 on any parse failure.
func tokenInt0(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
