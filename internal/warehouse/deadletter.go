package warehouse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartpixl/core/internal/record"
)

// DeadLetter persists batches the warehouse rejected (circuit open, or a
// CopyFrom that failed after retries) to per-batch files on disk, one JSON
// array of CaptureRecords per file, covering the warehouse's own
// durability gap the way internal/failover.Journal covers the pipe's.
type DeadLetter struct {
	dir string
	mu  sync.Mutex
}

func NewDeadLetter(dir string) *DeadLetter {
	return &DeadLetter{dir: dir}
}

// fileName builds deadletter_YYYYMMDD_HHMMSS_<uuid>.json; the timestamp
// prefix makes lexical order chronological for Replay, and the uuid keeps
// two batches rejected within the same second from colliding.
func fileName(now time.Time) string {
	return "deadletter_" + now.UTC().Format("20060102_150405") + "_" + uuid.NewString() + ".json"
}

// Write persists one rejected batch as a JSON array in its own file.
func (d *DeadLetter) Write(records []record.Capture) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(records)
	if err != nil {
		return err
	}
	name := filepath.Join(d.dir, fileName(time.Now()))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Replay reads every dead-letter file in lexical (i.e. chronological,
// given the timestamped filename) order and hands each decoded record to
// fn. A file is deleted only once every record in it has been handed off
// without error.
func (d *DeadLetter) Replay(fn func(*record.Capture) error) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(d.dir, name)
		if err := d.replayFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (d *DeadLetter) replayFile(path string, fn func(*record.Capture) error) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []record.Capture
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}
	for i := range records {
		if err := fn(&records[i]); err != nil {
			return err
		}
	}
	return os.Remove(path)
}
