package classifiers

import (
	"time"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/fingerprint"
	"github.com/smartpixl/core/internal/stability"
)

// Replay flags the exact same quantized mouse path reappearing under a
// different fingerprint: real browsers never reproduce a mouse path
// byte-for-byte, so a repeat path is characteristic of a scripted replay
// tool reusing recorded telemetry against a spoofed fingerprint.
type Replay struct {
	cache *fingerprint.ReplayCache
}

func NewReplay(c *fingerprint.ReplayCache) *Replay {
	return &Replay{cache: c}
}

func (c *Replay) Name() string { return "replay" }

func (c *Replay) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	if snap.MousePath == "" {
		return nil
	}
	hash := stability.FNVHash(snap.MousePath)
	isReplay, firstFP, count := c.cache.Check(hash, snap.DeviceFingerprint, time.Now())
	if !isReplay {
		return nil
	}
	ctx.Append("replay", "1")
	ctx.Append("replayFP", firstFP)
	ctx.Append("replayCount", itoa(count))
	return nil
}
