// Package contradiction implements the contradiction matrix: an ordered
// table of rules, each a predicate over one signal snapshot, classified by
// severity (Impossible > Improbable > Suspicious). The data file drives
// which rules run, their severity, and their order; the predicates
// themselves are compiled Go, keyed by rule name, since they are arbitrary
// boolean logic over the snapshot. Every rule is evaluated for every
// record; there is no short-circuiting on severity, since a record can
// legitimately trip more than one rule and every hit is reported.
package contradiction

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smartpixl/core/internal/enrich"
)

// Severity orders rule violations from most to least conclusive.
type Severity int

const (
	Suspicious Severity = iota
	Improbable
	Impossible
)

func (s Severity) String() string {
	switch s {
	case Impossible:
		return "Impossible"
	case Improbable:
		return "Improbable"
	}
	return "Suspicious"
}

func parseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "impossible":
		return Impossible, nil
	case "improbable":
		return Improbable, nil
	case "suspicious":
		return Suspicious, nil
	}
	return Suspicious, fmt.Errorf("contradiction: unknown severity %q", s)
}

// Predicate reports whether snap trips the rule it is attached to.
type Predicate func(snap *enrich.Snapshot) bool

// Rule is one row of the matrix: a name, a severity, and the check itself.
// Slice order is the evaluation and reporting order; it does not affect
// which rules fire, only the order flags are listed in.
type Rule struct {
	Name     string
	Severity Severity
	Check    Predicate
}

func isMobileUA(ua string) bool {
	ua = strings.ToLower(ua)
	return strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android")
}

func isDesktopUA(ua string) bool {
	ua = strings.ToLower(ua)
	return (strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux")) && !isMobileUA(ua)
}

func isAppleGPU(renderer string) bool {
	r := strings.ToLower(renderer)
	return strings.Contains(r, "apple") || strings.Contains(r, "metal")
}

func isDirect3D(renderer string) bool {
	return strings.Contains(strings.ToLower(renderer), "direct3d") || strings.Contains(strings.ToLower(renderer), "d3d")
}

func isSoftwareGPU(renderer string) bool {
	r := strings.ToLower(renderer)
	return strings.Contains(r, "swiftshader") || strings.Contains(r, "llvmpipe") || strings.Contains(r, "software") ||
		strings.Contains(r, "vmware") || strings.Contains(r, "virtualbox") || strings.Contains(r, "basic render")
}

func hasAppleFonts(fonts []string) bool {
	for _, f := range fonts {
		lf := strings.ToLower(f)
		if strings.Contains(lf, "san francisco") || strings.Contains(lf, "helvetica neue") || strings.Contains(lf, "pingfang") {
			return true
		}
	}
	return false
}

// predicates keys every known rule name to its compiled check. A name
// listed in the data file but absent here is a load-time error, not a
// silently dead rule.
var predicates = map[string]Predicate{
	"mobile_ua_wide_screen_mouse_movement": func(s *enrich.Snapshot) bool {
		return isMobileUA(s.UA) && s.ScreenWidth >= 2560 && s.MouseEntropy > 0
	},
	"macos_direct3d": func(s *enrich.Snapshot) bool {
		return strings.Contains(strings.ToLower(s.UA), "mac os") && isDirect3D(s.GPURenderer)
	},
	"safari_battery_api": func(s *enrich.Snapshot) bool {
		return strings.Contains(strings.ToLower(s.UA), "safari") && !strings.Contains(strings.ToLower(s.UA), "chrome") && s.BatteryAPI
	},
	"touch_points_without_touch_support": func(s *enrich.Snapshot) bool {
		return s.TouchPoints > 0 && !s.TouchSupport
	},
	"apple_fonts_on_linux": func(s *enrich.Snapshot) bool {
		return strings.Contains(strings.ToLower(s.Platform), "linux") && hasAppleFonts(s.Fonts)
	},
	"WindowsSafari": func(s *enrich.Snapshot) bool {
		ua := strings.ToLower(s.UA)
		return strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome") && strings.Contains(ua, "windows")
	},
	"apple_gpu_non_apple_platform": func(s *enrich.Snapshot) bool {
		p := strings.ToLower(s.Platform)
		return isAppleGPU(s.GPURenderer) && !strings.Contains(p, "mac") && !strings.Contains(p, "iphone") && !strings.Contains(p, "ipad")
	},
	"desktop_ua_narrow_screen": func(s *enrich.Snapshot) bool {
		return isDesktopUA(s.UA) && s.ScreenWidth > 0 && s.ScreenWidth < 600
	},
	"high_core_count_software_gpu": func(s *enrich.Snapshot) bool {
		return s.CPUCores >= 16 && isSoftwareGPU(s.GPURenderer)
	},
	"webdriver_high_mouse_entropy": func(s *enrich.Snapshot) bool {
		return s.WebDriver && s.MouseEntropy > 2.0
	},
	"iphone_large_screen": func(s *enrich.Snapshot) bool {
		return strings.Contains(strings.ToLower(s.UA), "iphone") && s.ScreenWidth > 500
	},
	"low_memory_high_core_count": func(s *enrich.Snapshot) bool {
		return s.MemoryGB > 0 && s.MemoryGB <= 0.5 && s.CPUCores >= 8
	},
	"mobile_ua_hover_capable": func(s *enrich.Snapshot) bool {
		return isMobileUA(s.UA) && s.HoverCapable
	},
}

type ruleFile struct {
	Rules []struct {
		Name     string `yaml:"name"`
		Severity string `yaml:"severity"`
	} `yaml:"rules"`
}

// Load reads the rule table from path, in file order, binding each row to
// its compiled predicate. Unknown rule names and severities are errors.
func Load(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ruleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("contradiction: %s lists no rules", path)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		pred, ok := predicates[r.Name]
		if !ok {
			return nil, fmt.Errorf("contradiction: no predicate compiled for rule %q", r.Name)
		}
		sev, err := parseSeverity(r.Severity)
		if err != nil {
			return nil, err
		}
		rules = append(rules, Rule{Name: r.Name, Severity: sev, Check: pred})
	}
	return rules, nil
}

// Hit is one rule that fired for a record.
type Hit struct {
	Name     string
	Severity Severity
}

// Evaluate runs every rule against snap, in table order, with no
// short-circuiting: a record can and does trip more than one rule.
func Evaluate(rules []Rule, snap *enrich.Snapshot) []Hit {
	var hits []Hit
	for _, r := range rules {
		if r.Check(snap) {
			hits = append(hits, Hit{Name: r.Name, Severity: r.Severity})
		}
	}
	return hits
}

// HighestSeverity returns the most conclusive severity among hits, or
// Suspicious's zero value if hits is empty (callers must check len(hits)
// separately to distinguish "no hits" from "lowest severity hit").
func HighestSeverity(hits []Hit) Severity {
	best := Suspicious
	for _, h := range hits {
		if h.Severity > best {
			best = h.Severity
		}
	}
	return best
}

// Names joins the fired rule names in evaluation order for the
// _srv_contradictionFlags token.
func Names(hits []Hit) string {
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Name
	}
	return strings.Join(names, ",")
}
