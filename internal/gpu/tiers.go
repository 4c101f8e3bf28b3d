// Package gpu implements the GPU tier and release-year lookup tables:
// ordered (substring, value) pairs matched case-insensitively, first match
// wins, loaded from a replaceable data file rather than compiled
// constants.
package gpu

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tier int

const (
	UnknownTier Tier = iota
	Low
	Mid
	High
)

func (t Tier) String() string {
	switch t {
	case High:
		return "HIGH"
	case Mid:
		return "MID"
	case Low:
		return "LOW"
	}
	return "Unknown"
}

type tierRule struct {
	Substring string `yaml:"substring"`
	Tier      string `yaml:"tier"`
}

type yearRule struct {
	Substring string `yaml:"substring"`
	Year      int    `yaml:"year"`
}

type dataFile struct {
	Tiers []tierRule `yaml:"tiers"`
	Years []yearRule `yaml:"years"`
}

// TierRuleForTest mirrors tierRule for tests in other packages that need
// to build a Table without reading a YAML file from disk.
type TierRuleForTest struct {
	Substring string
	Tier      string
}

// YearRuleForTest mirrors yearRule for tests in other packages.
type YearRuleForTest struct {
	Substring string
	Year      int
}

// NewTableForTest builds a Table directly from an in-memory rule list, for
// classifier tests that exercise LookupTier against a small fixed table.
func NewTableForTest(rules []TierRuleForTest) *Table {
	tiers := make([]tierRule, len(rules))
	for i, r := range rules {
		tiers[i] = tierRule{Substring: r.Substring, Tier: r.Tier}
	}
	return &Table{tiers: tiers}
}

// NewTableForTestWithYears builds a Table with both tier and year rule
// lists, for classifiers (like device-age triangulation) that need both.
func NewTableForTestWithYears(tierRules []TierRuleForTest, yearRules []YearRuleForTest) *Table {
	tbl := NewTableForTest(tierRules)
	years := make([]yearRule, len(yearRules))
	for i, r := range yearRules {
		years[i] = yearRule{Substring: r.Substring, Year: r.Year}
	}
	tbl.years = years
	return tbl
}

// Table is an immutable snapshot of the two ordered pattern lists.
type Table struct {
	tiers []tierRule
	years []yearRule
}

// Load reads path (a YAML file shaped like dataFile) into a Table. Ordering
// in the file is preserved exactly: professional/workstation entries that
// contain a consumer token must be listed before the plain consumer
// pattern so the "first match wins" rule resolves them correctly.
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var df dataFile
	if err := yaml.Unmarshal(b, &df); err != nil {
		return nil, err
	}
	return &Table{tiers: df.Tiers, years: df.Years}, nil
}

// LookupTier returns the tier of the first matching substring pattern, or
// UnknownTier ("Unknown", contributes nothing) if none match.
func (t *Table) LookupTier(renderer string) Tier {
	if t == nil || renderer == "" {
		return UnknownTier
	}
	low := strings.ToLower(renderer)
	for _, r := range t.tiers {
		if strings.Contains(low, strings.ToLower(r.Substring)) {
			return parseTier(r.Tier)
		}
	}
	return UnknownTier
}

// LookupYear returns the estimated release year of the first matching
// pattern, and whether any pattern matched.
func (t *Table) LookupYear(renderer string) (year int, ok bool) {
	if t == nil || renderer == "" {
		return 0, false
	}
	low := strings.ToLower(renderer)
	for _, r := range t.years {
		if strings.Contains(low, strings.ToLower(r.Substring)) {
			return r.Year, true
		}
	}
	return 0, false
}

func parseTier(s string) Tier {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return High
	case "MID":
		return Mid
	case "LOW":
		return Low
	}
	return UnknownTier
}

// OrderingRespected is a self-check used in tests: for every pattern that
// is a substring of a later pattern's text, the earlier (more specific)
// one must appear first so it wins the match. The package tests run it on
// in-memory tables; no test runs it on data/gpu_tiers.yaml.
func (t *Table) OrderingRespected() bool {
	for i, a := range t.tiers {
		for j := i + 1; j < len(t.tiers); j++ {
			b := t.tiers[j]
			// Violation case: a's substring (listed first, so it would
			// win first-match) is itself contained within b's substring
			// (listed later), meaning b is the narrower, more specific
			// pattern and should have been listed first instead.
			if strings.Contains(strings.ToLower(b.Substring), strings.ToLower(a.Substring)) && a.Substring != b.Substring {
				return false
			}
		}
	}
	return true
}
