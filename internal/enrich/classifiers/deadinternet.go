package classifiers

import (
	"strconv"

	"github.com/smartpixl/core/internal/enrich"
)

// DeadInternet scores the likelihood a hit is non-human traffic (scripted
// bots, headless browsers, click farms) by combining every automation
// signal earlier classifiers already produced, rather than re-deriving
// them. Must run after botua, contradiction, and replay in the catalog
// order.
type DeadInternet struct{}

func NewDeadInternet() *DeadInternet { return &DeadInternet{} }

func (c *DeadInternet) Name() string { return "deadinternet" }

func (c *DeadInternet) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	score := 0

	if v, ok := ctx.Get("knownBot"); ok && v == "true" {
		score += 45
	}
	if snap.WebDriver {
		score += 30
	}
	if v, ok := ctx.Get("replay"); ok && v == "1" {
		score += 20
	}
	if sev, ok := ctx.Get("contradictionSeverity"); ok {
		switch sev {
		case "Impossible":
			score += 25
		case "Improbable":
			score += 12
		case "Suspicious":
			score += 5
		}
	}
	if snap.MouseEntropy == 0 && snap.MousePath == "" {
		score += 10 // no mouse telemetry at all is common for scripted clients
	}
	if v, ok := ctx.Get("crossCustomerCount"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 3 {
			score += 15
		}
	}

	if score > 100 {
		score = 100
	}
	if score == 0 {
		return nil
	}
	ctx.Append("deadInternet", itoa(score))
	return nil
}
