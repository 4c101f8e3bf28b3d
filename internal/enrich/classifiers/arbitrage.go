package classifiers

import (
	"github.com/smartpixl/core/internal/cultural"
	"github.com/smartpixl/core/internal/enrich"
)

// Arbitrage computes the geographic-arbitrage score against the country
// MaxMind resolved earlier in the chain. It must run
// after the maxmind classifier; ordering is enforced by the Chain's
// declared catalog order, not by this classifier.
type Arbitrage struct {
	table *cultural.Table
}

func NewArbitrage(t *cultural.Table) *Arbitrage {
	return &Arbitrage{table: t}
}

func (c *Arbitrage) Name() string { return "arbitrage" }

func (c *Arbitrage) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	country, ok := ctx.Get("mmCC")
	if !ok || country == "" {
		return nil
	}
	res := c.table.Score(country, snap.Platform, snap.Fonts, snap.Language, snap.TimezoneName, snap.NumberFormat, snap.Calendar, snap.SpeechVoiceCount)
	if res.Score == 0 && len(res.Flags) == 0 && !res.TZKnown {
		return nil
	}
	ctx.Append("culturalScore", itoa(res.Score))
	if len(res.Flags) > 0 {
		ctx.Append("culturalFlags", cultural.FlagString(res.Flags))
	}
	if res.TZKnown {
		ctx.Append("tzMatch", boolStr(res.TZMatch))
	}
	return nil
}
