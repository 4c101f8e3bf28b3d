// Package failover implements the day-rolling append-only journal that
// absorbs CaptureRecords when the Edge-to-Forge pipe is unavailable, and
// the Forge-side sweeper that replays them. gofrs/flock arbitrates the
// handoff: the writer holds a shared lock on its open file, and the
// sweeper only drains and deletes a file once it can take an exclusive
// lock, i.e. once no writer has it open.
package failover

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/smartpixl/core/internal/record"
)

// Journal appends records to today's failover_YYYY_MM_DD.jsonl file under
// dir, rotating at UTC midnight. One Journal instance is owned by the
// Edge's single pipe-writer goroutine. The file is opened lazily on the
// first Append and held (with its shared lock) only until Release, so the
// sweeper can claim a drained outage's file as soon as the pipe recovers
// rather than at the next day roll.
type Journal struct {
	dir string

	mu   sync.Mutex
	day  string
	fout *os.File
	lock *flock.Flock
}

func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Journal{dir: dir}, nil
}

// FileName returns the journal file name for the given UTC day.
func FileName(day time.Time) string {
	return fmt.Sprintf("failover_%s.jsonl", day.UTC().Format("2006_01_02"))
}

func (j *Journal) path(day string) string {
	return filepath.Join(j.dir, "failover_"+day+".jsonl")
}

func (j *Journal) rollLocked(now time.Time) error {
	day := now.Format("2006_01_02")
	if day == j.day && j.fout != nil {
		return nil
	}
	pth := j.path(day)
	lk := flock.New(pth + ".lock")
	// A shared lock held for as long as the file is open. The sweeper
	// acquires an exclusive lock before draining and deleting a journal,
	// so holding this shared lock is what keeps it away from the live
	// file; it only ever consumes files no writer has open.
	if err := lk.RLock(); err != nil {
		return err
	}
	fout, err := os.OpenFile(pth, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		_ = lk.Unlock()
		return err
	}
	if j.fout != nil {
		_ = j.fout.Close()
	}
	if j.lock != nil {
		_ = j.lock.Unlock()
	}
	j.fout, j.lock, j.day = fout, lk, day
	return nil
}

// Append writes rec as one JSON line to today's journal file.
func (j *Journal) Append(rec *record.Capture) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.rollLocked(time.Now().UTC()); err != nil {
		return err
	}
	return record.WriteLine(j.fout, rec)
}

// Release closes the open journal file and drops its lock, handing the
// file over to the sweeper. Called by the pipe writer whenever the pipe is
// healthy again; the next Append reopens (or recreates) today's file.
func (j *Journal) Release() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.releaseLocked()
}

func (j *Journal) releaseLocked() error {
	var err error
	if j.fout != nil {
		err = j.fout.Close()
		j.fout = nil
	}
	if j.lock != nil {
		_ = j.lock.Unlock()
		j.lock = nil
	}
	j.day = ""
	return err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.releaseLocked()
}
