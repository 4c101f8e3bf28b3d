// Package warehouse implements the Forge's bulk-write stage into the
// analytical warehouse: batching, a streaming CopyFrom bulk insert,
// exponential-backoff retry, a three-state circuit breaker, and a
// dead-letter fallback for batches that exhaust their retries or are still
// waiting on an open breaker when the context is cancelled.
package warehouse

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/smartpixl/core/internal/record"
	"github.com/smartpixl/core/pkg/log"
	"github.com/smartpixl/core/pkg/metrics"
)

const (
	defaultRetries      = 3
	retryBaseWait       = time.Second
	defaultMaxBackoff   = 30 * time.Second
	defaultDrainTimeout = 10 * time.Second
)

// Writer batches finalized records off a channel and bulk-inserts them.
type Writer struct {
	In         <-chan record.Capture
	Pool       copier
	Table      string
	BatchSize  int
	FlushEvery time.Duration

	// RetryCount bounds per-batch retries after the first attempt; MaxBackoff caps the
	// open-breaker sleep; DrainTimeout bounds the shutdown drain.
	RetryCount   int
	MaxBackoff   time.Duration
	DrainTimeout time.Duration

	Breaker    *CircuitBreaker
	DeadLetter *DeadLetter
	Logger     *log.Logger
}

// NewWriter builds a Writer. Defaults: a 1000-row or 2-second batch
// trigger, whichever comes first.
func NewWriter(in <-chan record.Capture, pool copier, table string, dl *DeadLetter, lg *log.Logger) *Writer {
	return &Writer{
		In:           in,
		Pool:         pool,
		Table:        table,
		BatchSize:    1000,
		FlushEvery:   2 * time.Second,
		RetryCount:   defaultRetries,
		MaxBackoff:   defaultMaxBackoff,
		DrainTimeout: defaultDrainTimeout,
		Breaker:      NewCircuitBreaker(),
		DeadLetter:   dl,
		Logger:       lg,
	}
}

// Run batches incoming records and flushes them on size or time, until ctx
// is cancelled and In is drained.
func (w *Writer) Run(ctx context.Context) {
	batch := make([]record.Capture, 0, w.BatchSize)
	ticker := time.NewTicker(w.FlushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-w.In:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			w.drainAndExit(batch)
			return
		}
	}
}

// drainAndExit empties whatever is already buffered on In after
// cancellation and flushes it under the drain deadline. Anything still
// unflushed when the deadline passes is reported as dropped.
func (w *Writer) drainAndExit(batch []record.Capture) {
	dctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout())
	defer cancel()
	for {
		if dctx.Err() != nil {
			w.reportDropped(len(batch))
			return
		}
		select {
		case rec, ok := <-w.In:
			if !ok {
				w.finalFlush(dctx, batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.BatchSize {
				w.flush(dctx, batch)
				batch = batch[:0]
			}
		default:
			w.finalFlush(dctx, batch)
			return
		}
	}
}

func (w *Writer) finalFlush(ctx context.Context, batch []record.Capture) {
	if len(batch) == 0 {
		return
	}
	if ctx.Err() != nil {
		w.reportDropped(len(batch))
		return
	}
	w.flush(ctx, batch)
}

func (w *Writer) reportDropped(n int) {
	if n > 0 && w.Logger != nil {
		w.Logger.Error("shutdown drain deadline exceeded", log.KV("dropped", itoa(n)))
	}
}

// flush writes one batch through the circuit breaker, retrying transient
// errors with exponential backoff before falling back to the dead-letter
// store. A batch is copied, not referenced, before being handed to the
// retry loop so a later mutation of the caller's slice cannot race it.
func (w *Writer) flush(ctx context.Context, batch []record.Capture) {
	records := make([]record.Capture, len(batch))
	copy(records, batch)

	if !w.waitForBreaker(ctx) {
		w.toDeadLetter(records, "circuit_open")
		return
	}

	err := w.writeWithRetry(ctx, records)
	if err != nil {
		w.Breaker.Failure(err)
		metrics.WarehouseFailures.Inc()
		w.reportBreakerState()
		w.toDeadLetter(records, err.Error())
		return
	}
	w.Breaker.Success()
	w.reportBreakerState()
	metrics.WarehouseBatchRows.Observe(float64(len(records)))
}

func (w *Writer) reportBreakerState() {
	state, _, _ := w.Breaker.State()
	switch state {
	case openState.String():
		metrics.CircuitBreakerState.Set(2)
	case halfOpenState.String():
		metrics.CircuitBreakerState.Set(1)
	default:
		metrics.CircuitBreakerState.Set(0)
	}
}

// waitForBreaker blocks while the breaker is Open, sleeping an
// exponential backoff interval (doubling up to MaxBackoff) between
// checks. It returns false if ctx was cancelled before a write slot
// opened.
func (w *Writer) waitForBreaker(ctx context.Context) bool {
	wait := retryBaseWait
	for !w.Breaker.Allow() {
		w.reportBreakerState()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait *= 2
		if m := w.maxBackoff(); wait > m {
			wait = m
		}
	}
	return true
}

func (w *Writer) maxBackoff() time.Duration {
	if w.MaxBackoff > 0 {
		return w.MaxBackoff
	}
	return defaultMaxBackoff
}

func (w *Writer) drainTimeout() time.Duration {
	if w.DrainTimeout > 0 {
		return w.DrainTimeout
	}
	return defaultDrainTimeout
}

func (w *Writer) retries() uint64 {
	if w.RetryCount > 0 {
		return uint64(w.RetryCount)
	}
	return defaultRetries
}

// writeWithRetry makes one CopyFrom attempt plus up to RetryCount retries,
// waiting 1s, 2s, 4s, ... between them. A capacity error (isCapacityError)
// skips the remaining retries since they cannot help.
func (w *Writer) writeWithRetry(ctx context.Context, records []record.Capture) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryBaseWait
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, w.retries()), ctx)

	return backoff.Retry(func() error {
		_, err := copyBatch(ctx, w.Pool, w.Table, records)
		if err != nil && isCapacityError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func (w *Writer) toDeadLetter(records []record.Capture, reason string) {
	if err := w.DeadLetter.Write(records); err != nil && w.Logger != nil {
		w.Logger.Error("dead-letter write failed", log.KV("reason", reason), log.KVErr(err))
		return
	}
	if w.Logger != nil {
		w.Logger.Warn("batch routed to dead-letter", log.KV("reason", reason), log.KV("rows", itoa(len(records))))
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
