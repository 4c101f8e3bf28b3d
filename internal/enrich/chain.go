package enrich

import (
	"github.com/smartpixl/core/pkg/log"
)

// Classifier is one enricher stage. A failure in one is logged and the
// record continues; stages are independent of each other.
type Classifier interface {
	Name() string
	Classify(snap *Snapshot, ctx *Context) error
}

// Chain runs classifiers in declared order against one Snapshot built
// once at entry.
type Chain struct {
	classifiers []Classifier
	lg          *log.Logger
}

func NewChain(lg *log.Logger, classifiers ...Classifier) *Chain {
	return &Chain{classifiers: classifiers, lg: lg}
}

// Run builds the signal snapshot once and runs every classifier in order.
// A classifier error is logged at DEBUG and the record continues without
// that classifier's tokens.
func (c *Chain) Run(ctx *Context) {
	snap := BuildSnapshot(ctx.CurrentQuery())
	for _, cl := range c.classifiers {
		if err := safeClassify(cl, &snap, ctx); err != nil {
			if c.lg != nil {
				c.lg.Debug("classifier failed", log.KV("classifier", cl.Name()), log.KVErr(err))
			}
		}
	}
}

// safeClassify recovers from a classifier panic so one misbehaving
// enricher can never take down the pipeline.
func safeClassify(cl Classifier, snap *Snapshot, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicErr{cl.Name(), r}
		}
	}()
	return cl.Classify(snap, ctx)
}

type panicErr struct {
	classifier string
	val        interface{}
}

func (p panicErr) Error() string {
	return "classifier panicked: " + p.classifier
}

// Names returns the catalog order, used by tests asserting the declared
// order is preserved.
func (c *Chain) Names() []string {
	names := make([]string, len(c.classifiers))
	for i, cl := range c.classifiers {
		names[i] = cl.Name()
	}
	return names
}
