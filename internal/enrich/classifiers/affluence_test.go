package classifiers

import (
	"testing"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/gpu"
	"github.com/smartpixl/core/internal/record"
)

func tierTable(t *testing.T) *gpu.Table {
	t.Helper()
	return gpu.NewTableForTest([]gpu.TierRuleForTest{
		{Substring: "RTX 4090", Tier: "HIGH"},
		{Substring: "UHD Graphics", Tier: "LOW"},
	})
}

func TestAffluenceHighEndDeviceScoresHigh(t *testing.T) {
	cl := NewAffluence(tierTable(t))
	ctx := enrich.NewContext(record.Capture{})
	snap := &enrich.Snapshot{
		GPURenderer:  "NVIDIA GeForce RTX 4090",
		MemoryGB:     32,
		CPUCores:     16,
		ScreenWidth:  2560,
	}
	cl.Classify(snap, ctx)
	v, ok := ctx.Get("affluenceScore")
	if !ok {
		t.Fatalf("expected an affluenceScore token")
	}
	if v != "100" {
		t.Fatalf("expected a top-tier device to score 100, got %s", v)
	}
	tier, ok := ctx.Get("gpuTier")
	if !ok || tier != "HIGH" {
		t.Fatalf("expected gpuTier=HIGH, got (%q,%v)", tier, ok)
	}
}

func TestAffluenceLowEndDeviceScoresLow(t *testing.T) {
	cl := NewAffluence(tierTable(t))
	ctx := enrich.NewContext(record.Capture{})
	snap := &enrich.Snapshot{
		GPURenderer: "Intel UHD Graphics 620",
		MemoryGB:    2,
		CPUCores:    2,
		ScreenWidth: 1280,
	}
	cl.Classify(snap, ctx)
	v, _ := ctx.Get("affluenceScore")
	if v != "8" {
		t.Fatalf("expected a low-tier device to score 8, got %s", v)
	}
}
