package enrich

import (
	"context"

	"github.com/smartpixl/core/internal/record"
)

// Pipeline owns the bounded channel between the Forge's pipe listeners and
// the single enrichment consumer goroutine: many producers (pipe
// instances, the failover sweeper) try-send; exactly one consumer runs the
// Chain sequentially.
type Pipeline struct {
	in    chan *record.Capture
	chain *Chain
	out   chan<- record.Capture
}

func NewPipeline(bufSize int, chain *Chain, out chan<- record.Capture) *Pipeline {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Pipeline{in: make(chan *record.Capture, bufSize), chain: chain, out: out}
}

// TryEnqueue is the non-blocking producer side: it never stalls a pipe
// reader or the failover sweeper's hot path. Callers that need a bounded
// wait (the sweeper does) should instead call EnqueueWait.
func (p *Pipeline) TryEnqueue(rec *record.Capture) bool {
	select {
	case p.in <- rec:
		return true
	default:
		return false
	}
}

// EnqueueWait blocks until rec is enqueued, ctx is cancelled/timed out, in
// which case it returns false. Used by the failover sweeper, which is
// willing to wait up to 30s per record before abandoning a file.
func (p *Pipeline) EnqueueWait(ctx context.Context, rec *record.Capture) bool {
	select {
	case p.in <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run is the single enrichment consumer goroutine: pull a record, run the
// chain, push the finalized record downstream to the bulk writer. Blocks
// until ctx is cancelled or the input channel is closed and drained.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case rec, ok := <-p.in:
			if !ok {
				return
			}
			ectx := NewContext(*rec)
			p.chain.Run(ectx)
			select {
			case p.out <- ectx.Finalize():
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) Depth() int { return len(p.in) }
func (p *Pipeline) Cap() int   { return cap(p.in) }
