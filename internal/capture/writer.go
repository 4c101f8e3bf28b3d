package capture

import (
	"context"
	"time"

	"github.com/smartpixl/core/internal/failover"
	"github.com/smartpixl/core/internal/pipe"
	"github.com/smartpixl/core/pkg/log"
)

// Writer is the Edge's single pipe-writer goroutine: it drains Queue and
// forwards records to the Forge over the local pipe, falling back to the
// failover journal when the pipe is unavailable. It is the sole holder of
// the pipe client connection.
type Writer struct {
	Queue         *Queue
	PipePath      string
	ConnectTO     time.Duration
	RetryInterval time.Duration
	Journal       *failover.Journal
	Logger        *log.Logger
}

// Run blocks until ctx is cancelled, alternating between a connected-pipe
// loop and a failover loop.
func (w *Writer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := pipe.Dial(ctx, w.PipePath, w.ConnectTO)
		if err != nil {
			if w.Logger != nil {
				w.Logger.Warn("pipe unavailable, failing over", log.KVErr(err))
			}
			if w.failoverUntilRetry(ctx) {
				continue
			}
			return
		}
		// Pipe is healthy: hand any outage journal over to the sweeper.
		if err := w.Journal.Release(); err != nil && w.Logger != nil {
			w.Logger.Warn("journal release failed", log.KVErr(err))
		}
		w.drainToPipe(ctx, conn)
		_ = conn.Close()
	}
}

// drainToPipe forwards records to conn until it errors or ctx is done.
func (w *Writer) drainToPipe(ctx context.Context, conn interface{ Write([]byte) (int, error) }) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return
		default:
		}
		w.Queue.Wait(done)
		rec, ok := w.Queue.Pop()
		if !ok {
			continue
		}
		line, err := rec.MarshalLine()
		if err != nil {
			continue
		}
		if _, err := conn.Write(line); err != nil {
			// push it to the journal before giving up the connection so no
			// record is lost across the failover transition.
			if jerr := w.Journal.Append(&rec); jerr != nil && w.Logger != nil {
				w.Logger.Error("failover append failed", log.KVErr(jerr))
			}
			return
		}
	}
}

// failoverUntilRetry drains the queue into the journal for RetryInterval,
// then returns true to retry the pipe, or false if ctx was cancelled. The
// retry deadline is expressed as a derived context so Queue.Wait's
// block-until-record-or-done wakes on the deadline even during a quiet
// period with no incoming records, instead of waiting indefinitely for
// the next Push.
func (w *Writer) failoverUntilRetry(ctx context.Context) bool {
	failCtx, cancel := context.WithTimeout(ctx, w.RetryInterval)
	defer cancel()
	done := failCtx.Done()
	for {
		w.Queue.Wait(done)
		select {
		case <-done:
			return ctx.Err() == nil
		default:
		}
		rec, ok := w.Queue.Pop()
		if !ok {
			continue
		}
		if err := w.Journal.Append(&rec); err != nil && w.Logger != nil {
			w.Logger.Error("failover append failed", log.KVErr(err))
		}
	}
}
