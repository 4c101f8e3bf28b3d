// Package cultural implements the geographic-arbitrage score: a weighted
// sum of independent sub-checks, each comparing a
// client-reported signal against the country implied by the resolved IP
// geolocation, used to flag sessions where many signals jointly disagree
// with the claimed or inferred locale in a way no single contradiction rule
// captures. Reference data is loaded once from a replaceable YAML file,
// like the gpu package's tables; a loaded Table is not refreshed in place.
package cultural

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type dataFile struct {
	// PlatformFonts lists font-family substrings expected on a given
	// navigator.platform value, e.g. "Win32" -> ["Segoe UI", "Calibri"].
	PlatformFonts map[string][]string `yaml:"platform_fonts"`
	// RegionalFonts lists font-family substrings diagnostic of a script
	// family, e.g. "cjk" -> ["Microsoft YaHei", "SimSun", "PingFang"].
	RegionalFonts map[string][]string `yaml:"regional_fonts"`
	// RegionalCountries maps a script-family key to the set of country
	// codes where that family is the native script.
	RegionalCountries map[string][]string `yaml:"regional_countries"`
	// LanguageCountry maps an Accept-Language primary subtag to the
	// country codes where it is the dominant language.
	LanguageCountry map[string][]string `yaml:"language_country"`
	// TimezonePrefixCountry maps an IANA timezone area prefix ("Europe",
	// "Asia/Shanghai") to the country codes it is consistent with.
	TimezonePrefixCountry map[string][]string `yaml:"timezone_prefix_country"`
	// CommaDecimalCountries lists countries where "," is the conventional
	// decimal separator (most of continental Europe and Latin America).
	CommaDecimalCountries []string `yaml:"comma_decimal_countries"`
	// CalendarCountry maps a non-Gregorian calendar identifier to the
	// countries where it is in common civil use.
	CalendarCountry map[string][]string `yaml:"calendar_country"`
	// DesktopPlatforms lists navigator.platform values that are desktop
	// browsers, where zero synthesis voices is implausible.
	DesktopPlatforms []string `yaml:"desktop_platforms"`
	// Weights assigns points out of 100 to each named sub-check.
	Weights map[string]int `yaml:"weights"`
}

// Table is the immutable, concurrently-readable reference snapshot.
type Table struct {
	data dataFile
}

// Load reads path (a YAML file shaped like dataFile) into a Table.
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var df dataFile
	if err := yaml.Unmarshal(b, &df); err != nil {
		return nil, err
	}
	return &Table{data: df}, nil
}

// Result is the outcome of scoring one record against a resolved country.
type Result struct {
	Score   int      // 0-100, higher = more geographic arbitrage signal
	Flags   []string // names of sub-checks that fired, declared order
	TZKnown bool     // true if a timezone was reported, so TZMatch is meaningful
	TZMatch bool     // timezone-prefix consistency with geoCountry, reported separately from the score
}

// Score evaluates every sub-check against geoCountry (the ISO country code
// from IP geolocation; empty if unresolved) and returns their weighted sum
// plus the list of fired check names in declaration order. Every check
// that has data to evaluate runs; a check with no applicable signal (e.g.
// no language reported) contributes neither points nor a flag.
func (t *Table) Score(geoCountry, platform string, fonts []string, language, timezone, numberFormat, calendar string, speechVoiceCount int) Result {
	if t == nil || geoCountry == "" {
		return Result{}
	}
	geoCountry = strings.ToUpper(geoCountry)

	var res Result
	add := func(name string, fired bool) {
		if !fired {
			return
		}
		res.Score += t.data.Weights[name]
		res.Flags = append(res.Flags, name)
	}

	add("font_region_mismatch", t.fontRegionMismatch(geoCountry, fonts))
	add("language_country_mismatch", t.languageMismatch(geoCountry, language))
	tzFired := t.timezoneMismatch(geoCountry, timezone)
	add("timezone_mismatch", tzFired)
	res.TZKnown = timezone != ""
	res.TZMatch = !tzFired
	add("number_format_mismatch", t.numberFormatMismatch(geoCountry, numberFormat))
	add("calendar_mismatch", t.calendarMismatch(geoCountry, calendar))
	add("platform_font_mismatch", t.platformFontMismatch(platform, fonts))
	add("speech_voice_mismatch", t.speechVoiceMismatch(platform, speechVoiceCount))

	if res.Score > 100 {
		res.Score = 100
	}
	return res
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// fontRegionMismatch flags when the client's font list carries a strong
// marker for one script region (e.g. CJK fonts installed) but the resolved
// country is not one where that script is native.
func (t *Table) fontRegionMismatch(geoCountry string, fonts []string) bool {
	for region, markers := range t.data.RegionalFonts {
		hit := 0
		for _, f := range fonts {
			for _, m := range markers {
				if strings.Contains(strings.ToLower(f), strings.ToLower(m)) {
					hit++
					break
				}
			}
		}
		if hit == 0 {
			continue
		}
		countries := t.data.RegionalCountries[region]
		if len(countries) > 0 && !contains(countries, geoCountry) {
			return true
		}
	}
	return false
}

// platformFontMismatch flags when the reported OS platform's expected
// system font set is entirely absent from the client's enumerated fonts,
// suggesting a spoofed navigator.platform value.
func (t *Table) platformFontMismatch(platform string, fonts []string) bool {
	expected, ok := t.data.PlatformFonts[platform]
	if !ok || len(expected) == 0 || len(fonts) == 0 {
		return false
	}
	for _, e := range expected {
		for _, f := range fonts {
			if strings.Contains(strings.ToLower(f), strings.ToLower(e)) {
				return false
			}
		}
	}
	return true
}

func (t *Table) languageMismatch(geoCountry, language string) bool {
	if language == "" {
		return false
	}
	primary := strings.ToLower(strings.SplitN(strings.SplitN(language, ",", 2)[0], "-", 2)[0])
	if primary == "en" {
		return false // English is accepted everywhere
	}
	countries, ok := t.data.LanguageCountry[primary]
	if !ok || len(countries) == 0 {
		return false
	}
	return !contains(countries, geoCountry)
}

func (t *Table) timezoneMismatch(geoCountry, timezone string) bool {
	if timezone == "" {
		return false
	}
	prefix := timezone
	if i := strings.Index(timezone, "/"); i >= 0 {
		prefix = timezone[:i]
	}
	countries, ok := t.data.TimezonePrefixCountry[prefix]
	if !ok || len(countries) == 0 {
		return false
	}
	return !contains(countries, geoCountry)
}

func (t *Table) numberFormatMismatch(geoCountry, numberFormat string) bool {
	if numberFormat == "" {
		return false
	}
	commaCountry := contains(t.data.CommaDecimalCountries, geoCountry)
	switch strings.ToLower(numberFormat) {
	case "comma":
		return !commaCountry
	case "dot":
		return commaCountry
	}
	return false
}

// speechVoiceMismatch flags a desktop platform reporting zero
// speechSynthesis voices: real desktop browsers
// always enumerate at least the OS's built-in voices, so zero is a strong
// headless/automation marker rather than a plausible real reading.
func (t *Table) speechVoiceMismatch(platform string, voiceCount int) bool {
	if voiceCount > 0 || platform == "" {
		return false
	}
	return contains(t.data.DesktopPlatforms, platform)
}

func (t *Table) calendarMismatch(geoCountry, calendar string) bool {
	if calendar == "" || strings.EqualFold(calendar, "gregory") || strings.EqualFold(calendar, "gregorian") {
		return false
	}
	countries, ok := t.data.CalendarCountry[strings.ToLower(calendar)]
	if !ok || len(countries) == 0 {
		return false
	}
	return !contains(countries, geoCountry)
}

// FlagString joins fired flags in declaration order for the _srv_culturalFlags token.
func FlagString(flags []string) string {
	return strings.Join(flags, ",")
}

// sortedWeightNames returns the loaded table's sub-check names in sorted
// order. It checks nothing about the weights themselves.
func (t *Table) sortedWeightNames() []string {
	names := make([]string, 0, len(t.data.Weights))
	for k := range t.data.Weights {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TotalWeight sums every declared weight; used by tests to assert the
// maximum possible score never exceeds 100.
func (t *Table) TotalWeight() int {
	total := 0
	for _, n := range t.sortedWeightNames() {
		total += t.data.Weights[n]
	}
	return total
}
