package enrich

import (
	"net/url"
	"strconv"
	"strings"
)

// Snapshot holds every primitive field a classifier might need, decoded
// once per record from the raw query string; classifiers never re-parse
// the query themselves. Value type, intended
// to live on the stack for the duration of one pipeline pass.
type Snapshot struct {
	UA string

	ScreenWidth  int
	ScreenHeight int
	TouchPoints  int
	HoverCapable bool
	TouchSupport bool

	MemoryGB   float64
	CPUCores   int
	GPURenderer string

	Platform string // client-reported navigator.platform

	Fonts        []string
	RegionalHits map[string]int // font family -> occurrences, for cultural checks

	Language        string
	TimezoneName    string
	NumberFormat    string // "dot" or "comma"
	Calendar        string

	CanvasFingerprint string
	WebDriver         bool
	MouseEntropy      float64
	BatteryAPI        bool
	SpeechVoiceCount  int

	MousePath string // raw quantized path string, e.g. "10,10,0|20,20,100"

	DeviceFingerprint string // composite hash input for session/cross-customer
}

// BuildSnapshot parses the effective query string (original + any
// already-appended _srv_* tokens) into a Snapshot. Unknown/missing fields
// default to their zero value; classifiers must treat zero as "absent",
// never as a meaningful zero.
func BuildSnapshot(rawQuery string) Snapshot {
	v, _ := url.ParseQuery(rawQuery)
	var s Snapshot

	s.UA = first(v, "ua")
	s.ScreenWidth = atoi(first(v, "sw"))
	s.ScreenHeight = atoi(first(v, "sh"))
	s.TouchPoints = atoi(first(v, "tp"))
	s.HoverCapable = atob(first(v, "hover"))
	s.TouchSupport = atob(first(v, "touch"))
	s.MemoryGB = atof(first(v, "mem"))
	s.CPUCores = atoi(first(v, "cores"))
	s.GPURenderer = first(v, "gpu")
	s.Platform = first(v, "platform")
	s.Fonts = splitNonEmpty(first(v, "fonts"), ",")
	s.Language = first(v, "lang")
	s.TimezoneName = first(v, "tz")
	s.NumberFormat = first(v, "numfmt")
	s.Calendar = first(v, "cal")
	s.CanvasFingerprint = first(v, "canvas")
	s.WebDriver = atob(first(v, "webdriver"))
	s.MouseEntropy = atof(first(v, "mouseEntropy"))
	s.BatteryAPI = atob(first(v, "battery"))
	s.SpeechVoiceCount = atoi(first(v, "voices"))
	s.MousePath = first(v, "mousePath")
	s.DeviceFingerprint = first(v, "fp")
	if s.DeviceFingerprint == "" {
		s.DeviceFingerprint = s.CanvasFingerprint
	}
	return s
}

func first(v url.Values, key string) string {
	if vals, ok := v[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func atob(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
