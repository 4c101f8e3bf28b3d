package failover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/smartpixl/core/internal/record"
	"github.com/smartpixl/core/pkg/log"
)

// Sweeper periodically drains .jsonl files left in dir by an Edge that had
// to fail over, enqueuing each decoded record into enqueue.
type Sweeper struct {
	dir      string
	interval time.Duration
	waitPer  time.Duration
	enqueue  func(context.Context, *record.Capture) bool
	lg       *log.Logger
}

func NewSweeper(dir string, interval, waitPer time.Duration, enqueue func(context.Context, *record.Capture) bool, lg *log.Logger) *Sweeper {
	return &Sweeper{dir: dir, interval: interval, waitPer: waitPer, enqueue: enqueue, lg: lg}
}

// Run blocks, sweeping on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if s.lg != nil {
			s.lg.Warn("failover sweep: read dir failed", log.KVErr(err))
		}
		return
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files) // oldest-first by the embedded date in the name

	for _, name := range files {
		if ctx.Err() != nil {
			return
		}
		s.sweepFile(ctx, filepath.Join(s.dir, name))
	}
}

// sweepFile drains one journal file. The lock must be exclusive: the Edge
// holds a shared lock on the file it currently has open, so an exclusive
// acquisition succeeding proves no writer can append between our read and
// the delete. A shared lock here would let the sweeper unlink a file the
// Edge still has open, stranding subsequent appends in an orphaned inode.
// On sustained backpressure the file is abandoned (without deleting it) so
// the next tick retries from the top; on a clean EOF it is deleted.
func (s *Sweeper) sweepFile(ctx context.Context, path string) {
	lk := flock.New(path + ".lock")
	locked, err := lk.TryLock()
	if err != nil || !locked {
		return // Edge still has this file open; try next sweep
	}
	defer lk.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	abandoned := false
	malformed, scanErr := record.Scan(f, func(rec *record.Capture) error {
		wctx, cancel := context.WithTimeout(ctx, s.waitPer)
		defer cancel()
		if !s.enqueue(wctx, rec) {
			abandoned = true
			return errStop
		}
		return nil
	})
	if scanErr != nil && scanErr != errStop {
		if s.lg != nil {
			s.lg.Warn("failover sweep: scan error", log.KV("file", path), log.KVErr(scanErr))
		}
		return
	}
	if malformed > 0 && s.lg != nil {
		s.lg.Warn("failover sweep: skipped malformed lines", log.KV("file", path), log.KV("count", malformed))
	}
	if abandoned {
		return // preserve the file for the next sweep
	}
	_ = os.Remove(path)
	_ = os.Remove(path + ".lock")
}

var errStop = stopErr{}

type stopErr struct{}

func (stopErr) Error() string { return "failover sweep: abandoning file under backpressure" }
