package contradiction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartpixl/core/internal/enrich"
)

// fullRuleYAML mirrors data/contradictions.yaml: every registered
// predicate, Impossible rules first.
const fullRuleYAML = `rules:
  - { name: mobile_ua_wide_screen_mouse_movement, severity: Impossible }
  - { name: macos_direct3d, severity: Impossible }
  - { name: safari_battery_api, severity: Impossible }
  - { name: touch_points_without_touch_support, severity: Impossible }
  - { name: apple_fonts_on_linux, severity: Impossible }
  - { name: WindowsSafari, severity: Impossible }
  - { name: apple_gpu_non_apple_platform, severity: Impossible }
  - { name: desktop_ua_narrow_screen, severity: Improbable }
  - { name: high_core_count_software_gpu, severity: Improbable }
  - { name: iphone_large_screen, severity: Improbable }
  - { name: webdriver_high_mouse_entropy, severity: Suspicious }
  - { name: low_memory_high_core_count, severity: Suspicious }
  - { name: mobile_ua_hover_capable, severity: Suspicious }
`

func loadRules(t *testing.T, yaml string) []Rule {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contradictions.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rules, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return rules
}

func TestLoadCoversEveryRegisteredPredicate(t *testing.T) {
	rules := loadRules(t, fullRuleYAML)
	if len(rules) != len(predicates) {
		t.Fatalf("rule file lists %d rules but %d predicates are registered", len(rules), len(predicates))
	}
	seen := map[string]bool{}
	for _, r := range rules {
		if seen[r.Name] {
			t.Fatalf("rule %q listed twice", r.Name)
		}
		seen[r.Name] = true
	}
}

func TestLoadRejectsUnknownRuleName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contradictions.yaml")
	os.WriteFile(path, []byte("rules:\n  - { name: no_such_rule, severity: Impossible }\n"), 0640)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a rule name with no compiled predicate")
	}
}

func TestLoadRejectsUnknownSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contradictions.yaml")
	os.WriteFile(path, []byte("rules:\n  - { name: WindowsSafari, severity: Catastrophic }\n"), 0640)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown severity")
	}
}

func TestEvaluateRunsEveryRuleNoShortCircuit(t *testing.T) {
	// A snapshot crafted to trip two independent rules at once: a mobile UA
	// reporting mouse movement on a wide screen, and a mobile UA that also
	// claims hover capability.
	snap := &enrich.Snapshot{
		UA:           "Mozilla/5.0 (Linux; Android 13) Mobile",
		ScreenWidth:  2560,
		MouseEntropy: 0.8,
		HoverCapable: true,
	}
	rules := loadRules(t, fullRuleYAML)
	hits := Evaluate(rules, snap)
	names := Names(hits)
	if len(hits) < 2 {
		t.Fatalf("expected at least two independent rules to fire, got %q", names)
	}
	foundWideScreen, foundHover := false, false
	for _, h := range hits {
		if h.Name == "mobile_ua_wide_screen_mouse_movement" {
			foundWideScreen = true
		}
		if h.Name == "mobile_ua_hover_capable" {
			foundHover = true
		}
	}
	if !foundWideScreen || !foundHover {
		t.Fatalf("expected both rules to fire independently without short-circuiting, got %q", names)
	}
}

func TestWindowsSafariRuleNameMatchesEndToEndScenario(t *testing.T) {
	snap := &enrich.Snapshot{
		UA:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15",
		Platform: "Win32",
	}
	hits := Evaluate(loadRules(t, fullRuleYAML), snap)
	if !hasName(hits, "WindowsSafari") {
		t.Fatalf("expected WindowsSafari rule to fire for a Windows Safari UA, got %q", Names(hits))
	}
	if HighestSeverity(hits) != Impossible {
		t.Fatalf("expected Impossible severity, got %v", HighestSeverity(hits))
	}
}

func TestEvaluateNoHitsOnPlausibleSnapshot(t *testing.T) {
	snap := &enrich.Snapshot{
		UA:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/115.0 Safari/537.36",
		Platform:     "Win32",
		ScreenWidth:  1920,
		CPUCores:     8,
		MemoryGB:     16,
		GPURenderer:  "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0)",
		HoverCapable: true,
		TouchSupport: false,
	}
	hits := Evaluate(loadRules(t, fullRuleYAML), snap)
	if len(hits) != 0 {
		t.Fatalf("expected a plausible desktop snapshot to trip nothing, got %q", Names(hits))
	}
}

func TestHighestSeverityOfEmptyHitsIsSuspicious(t *testing.T) {
	if got := HighestSeverity(nil); got != Suspicious {
		t.Fatalf("expected Suspicious zero value for no hits, got %v", got)
	}
}

func TestEvaluationOrderIsFileOrder(t *testing.T) {
	snap := &enrich.Snapshot{
		UA:           "iPhone",
		ScreenWidth:  800,
		MemoryGB:     1,
		CPUCores:     16,
		GPURenderer:  "SwiftShader",
		WebDriver:    true,
		MouseEntropy: 0.9,
	}
	rules := loadRules(t, fullRuleYAML)
	hits := Evaluate(rules, snap)
	for i := 1; i < len(hits); i++ {
		idxPrev, idxCur := ruleIndex(rules, hits[i-1].Name), ruleIndex(rules, hits[i].Name)
		if idxCur < idxPrev {
			t.Fatalf("hits out of file order: %q before %q", hits[i-1].Name, hits[i].Name)
		}
	}
}

func hasName(hits []Hit, name string) bool {
	for _, h := range hits {
		if h.Name == name {
			return true
		}
	}
	return false
}

func ruleIndex(rules []Rule, name string) int {
	for i, r := range rules {
		if r.Name == name {
			return i
		}
	}
	return -1
}
