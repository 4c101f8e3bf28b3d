package classifiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartpixl/core/internal/contradiction"
	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/record"
)

func contradictionRules(t *testing.T) []contradiction.Rule {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contradictions.yaml")
	data := "rules:\n" +
		"  - { name: WindowsSafari, severity: Impossible }\n" +
		"  - { name: mobile_ua_hover_capable, severity: Suspicious }\n"
	if err := os.WriteFile(path, []byte(data), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rules, err := contradiction.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return rules
}

func TestContradictionClassifierAppendsTokensOnHit(t *testing.T) {
	cl := NewContradiction(contradictionRules(t))
	ctx := enrich.NewContext(record.Capture{})
	snap := &enrich.Snapshot{
		UA:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/605.1.15 Version/16.0 Safari/605.1.15",
		Platform: "Win32",
	}
	if err := cl.Classify(snap, ctx); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	n, ok := ctx.Get("contradictions")
	if !ok || n != "1" {
		t.Fatalf("expected one contradiction counted, got (%q,%v)", n, ok)
	}
	flags, ok := ctx.Get("contradictionFlags")
	if !ok || flags != "WindowsSafari" {
		t.Fatalf("expected contradictionFlags=WindowsSafari, got (%q,%v)", flags, ok)
	}
	sev, ok := ctx.Get("contradictionSeverity")
	if !ok || sev != "Impossible" {
		t.Fatalf("expected Impossible severity, got (%q,%v)", sev, ok)
	}
}

func TestContradictionClassifierSkipsTokensOnCleanSnapshot(t *testing.T) {
	cl := NewContradiction(contradictionRules(t))
	ctx := enrich.NewContext(record.Capture{})
	snap := &enrich.Snapshot{
		UA:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/115.0 Safari/537.36",
		Platform: "Win32",
	}
	cl.Classify(snap, ctx)
	if _, ok := ctx.Get("contradictions"); ok {
		t.Fatalf("expected no contradiction tokens for a clean snapshot")
	}
}
