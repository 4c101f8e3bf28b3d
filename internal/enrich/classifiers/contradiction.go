package classifiers

import (
	"github.com/smartpixl/core/internal/contradiction"
	"github.com/smartpixl/core/internal/enrich"
)

// Contradiction runs the loaded contradiction-matrix rule table against
// the snapshot and appends the fired rule names and the most severe
// category reached.
type Contradiction struct {
	rules []contradiction.Rule
}

func NewContradiction(rules []contradiction.Rule) *Contradiction {
	return &Contradiction{rules: rules}
}

func (c *Contradiction) Name() string { return "contradiction" }

func (c *Contradiction) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	hits := contradiction.Evaluate(c.rules, snap)
	if len(hits) == 0 {
		return nil
	}
	ctx.Append("contradictions", itoa(len(hits)))
	ctx.Append("contradictionFlags", contradiction.Names(hits))
	ctx.Append("contradictionSeverity", contradiction.HighestSeverity(hits).String())
	return nil
}
