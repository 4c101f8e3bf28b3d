package capture

import (
	"sync"
	"sync/atomic"

	"github.com/smartpixl/core/internal/record"
	"github.com/smartpixl/core/pkg/metrics"
)

// Queue is the Edge's bounded multi-producer single-consumer buffer between
// HTTP handler goroutines and the single pipe-writer goroutine. On full, the
// oldest record is dropped so the newest is always admitted; enqueue never
// suspends. An explicit ring rather than a buffered channel, since Go
// channels alone cannot express "evict oldest on overflow".
type Queue struct {
	mu       sync.Mutex
	buf      []record.Capture
	head     int
	size     int
	cap      int
	dropped  atomic.Int64
	notEmpty chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		buf:      make([]record.Capture, capacity),
		cap:      capacity,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push never blocks. If the queue is full, the oldest entry is evicted to
// make room for rec.
func (q *Queue) Push(rec record.Capture) {
	q.mu.Lock()
	if q.size == q.cap {
		q.head = (q.head + 1) % q.cap
		q.size--
		q.dropped.Add(1)
		metrics.QueueDropped.Inc()
	}
	tail := (q.head + q.size) % q.cap
	q.buf[tail] = rec
	q.size++
	depth := q.size
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest record, or ok=false if empty.
func (q *Queue) Pop() (rec record.Capture, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return record.Capture{}, false
	}
	rec = q.buf[q.head]
	q.buf[q.head] = record.Capture{}
	q.head = (q.head + 1) % q.cap
	q.size--
	return rec, true
}

// Wait blocks until the queue has at least one element, a value arrives on
// done, or the channel is closed. Used by the pipe writer's drain loop
// instead of busy-polling.
func (q *Queue) Wait(done <-chan struct{}) {
	if q.Depth() > 0 {
		return
	}
	select {
	case <-q.notEmpty:
	case <-done:
	}
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the cumulative count of records evicted due to a full
// queue, exposed via /internal/queue-depth for operators.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
