package classifiers

import (
	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/gpu"
)

// Affluence scores a device's apparent purchasing power on a 0-100 scale
// from its hardware signals: GPU tier, memory, core count, and display
// resolution. A high-tier GPU and ample memory
// read as a recently-purchased, premium device; low-tier/low-memory reads
// as budget hardware or an emulator.
type Affluence struct {
	gpuTable *gpu.Table
}

func NewAffluence(t *gpu.Table) *Affluence {
	return &Affluence{gpuTable: t}
}

func (c *Affluence) Name() string { return "affluence" }

func (c *Affluence) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	score := 0

	tier := c.gpuTable.LookupTier(snap.GPURenderer)
	if tier != gpu.UnknownTier {
		ctx.Append("gpuTier", tier.String())
	}
	switch tier {
	case gpu.High:
		score += 40
	case gpu.Mid:
		score += 22
	case gpu.Low:
		score += 8
	}

	switch {
	case snap.MemoryGB >= 16:
		score += 25
	case snap.MemoryGB >= 8:
		score += 15
	case snap.MemoryGB >= 4:
		score += 6
	}

	switch {
	case snap.CPUCores >= 12:
		score += 20
	case snap.CPUCores >= 8:
		score += 12
	case snap.CPUCores >= 4:
		score += 5
	}

	if snap.ScreenWidth >= 2560 {
		score += 15
	} else if snap.ScreenWidth >= 1920 {
		score += 8
	}

	if score > 100 {
		score = 100
	}
	ctx.Append("affluenceScore", itoa(score))
	return nil
}
