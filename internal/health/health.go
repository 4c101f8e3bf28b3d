// Package health implements the Forge/Edge health-check surface: a set of
// independent probes run in parallel with a short result cache, rolled up
// into a single overall status label.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the overall health rollup label.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Probe is one independent health check. Name identifies it in the report;
// Critical marks whether its failure alone drags the overall status to
// Critical (false means it can only produce a Warning).
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) (detail string, err error)
}

// Result is one probe's outcome.
type Result struct {
	Name     string
	OK       bool
	Detail   string
	Error    string
	Duration time.Duration
}

// Report is the full health rollup.
type Report struct {
	Status    Status
	Results   []Result
	Runtime   RuntimeStats
	CheckedAt time.Time
}

// RuntimeStats carries the process self-report counters.
type RuntimeStats struct {
	Goroutines int
	AllocBytes uint64
	NumGC      uint32
}

// Checker runs the registered probes in parallel and caches the combined
// report for cacheTTL so frequent health polling doesn't re-run expensive
// probes (warehouse pings, outbound HTTP) every call.
type Checker struct {
	probes   []Probe
	cacheTTL time.Duration

	mu     sync.Mutex
	cached *Report
}

// NewChecker builds a Checker. cacheTTL defaults to 15s.
func NewChecker(cacheTTL time.Duration, probes ...Probe) *Checker {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Second
	}
	return &Checker{probes: probes, cacheTTL: cacheTTL}
}

// Check returns the cached report if still fresh, otherwise runs every
// probe concurrently and caches the new result.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cached.CheckedAt) < c.cacheTTL {
		r := *c.cached
		c.mu.Unlock()
		return r
	}
	c.mu.Unlock()

	report := c.runAll(ctx)

	c.mu.Lock()
	c.cached = &report
	c.mu.Unlock()
	return report
}

func (c *Checker) runAll(ctx context.Context) Report {
	results := make([]Result, len(c.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.probes {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			detail, err := p.Check(gctx)
			r := Result{Name: p.Name, Duration: time.Since(start), Detail: detail}
			if err != nil {
				r.Error = err.Error()
			} else {
				r.OK = true
			}
			results[i] = r
			return nil // probe failures don't abort the group; each is independent
		})
	}
	_ = g.Wait()

	status := StatusOK
	for i, r := range results {
		if r.OK {
			continue
		}
		if c.probes[i].Critical {
			status = StatusCritical
		} else if status != StatusCritical {
			status = StatusWarning
		}
	}

	return Report{
		Status:    status,
		Results:   results,
		Runtime:   currentRuntimeStats(),
		CheckedAt: time.Now(),
	}
}

func currentRuntimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		AllocBytes: m.Alloc,
		NumGC:      m.NumGC,
	}
}
