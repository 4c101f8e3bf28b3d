package failover

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartpixl/core/internal/record"
)

func writeJournalFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf []byte
	for _, l := range lines {
		buf = append(buf, l...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(path, buf, 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSweeperDrainsAndDeletesFile(t *testing.T) {
	dir := t.TempDir()
	writeJournalFile(t, dir, "failover_2026_07_30.jsonl", []string{
		`{"company":"acme","pixel":"p1","ip":"8.8.8.8"}`,
		`not json at all`,
		`{"company":"acme","pixel":"p2","ip":"8.8.4.4"}`,
	})

	var got []string
	s := NewSweeper(dir, time.Hour, time.Second, func(ctx context.Context, rec *record.Capture) bool {
		got = append(got, rec.Pixel)
		return true
	}, nil)
	s.sweepOnce(context.Background())

	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("expected both valid records enqueued in order, got %v", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the journal file (and its lock) removed after a clean drain, %d entries remain", len(entries))
	}
}

func TestSweeperPreservesFileUnderBackpressure(t *testing.T) {
	dir := t.TempDir()
	path := writeJournalFile(t, dir, "failover_2026_07_30.jsonl", []string{
		`{"company":"acme","pixel":"p1"}`,
		`{"company":"acme","pixel":"p2"}`,
	})

	accepted := 0
	s := NewSweeper(dir, time.Hour, 10*time.Millisecond, func(ctx context.Context, rec *record.Capture) bool {
		if accepted == 0 {
			accepted++
			return true
		}
		return false // downstream refuses the second record
	}, nil)
	s.sweepOnce(context.Background())

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the abandoned file preserved for the next sweep: %v", err)
	}
}

func TestSweeperProcessesFilesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	writeJournalFile(t, dir, "failover_2026_07_30.jsonl", []string{`{"pixel":"old"}`})
	writeJournalFile(t, dir, "failover_2026_07_31.jsonl", []string{`{"pixel":"new"}`})

	var order []string
	s := NewSweeper(dir, time.Hour, time.Second, func(ctx context.Context, rec *record.Capture) bool {
		order = append(order, rec.Pixel)
		return true
	}, nil)
	s.sweepOnce(context.Background())

	if len(order) != 2 || order[0] != "old" || order[1] != "new" {
		t.Fatalf("expected oldest file drained first, got %v", order)
	}
}

func TestSweeperSkipsFileTheWriterStillHasOpen(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	if err := j.Append(&record.Capture{Company: "acme", Pixel: "p1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := 0
	s := NewSweeper(dir, time.Hour, time.Second, func(ctx context.Context, rec *record.Capture) bool {
		got++
		return true
	}, nil)

	// The writer still holds its shared lock, so the sweep must leave the
	// file completely alone: no records consumed, file still present.
	s.sweepOnce(context.Background())
	path := filepath.Join(dir, FileName(time.Now()))
	if got != 0 {
		t.Fatalf("expected no records consumed from a file the writer has open, got %d", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the live journal file untouched: %v", err)
	}

	// An append racing the sweep must land in the same, still-linked file.
	if err := j.Append(&record.Capture{Company: "acme", Pixel: "p2"}); err != nil {
		t.Fatalf("Append during sweep window: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Writer gone: the sweeper may now take its exclusive lock, drain both
	// records, and delete the file.
	s.sweepOnce(context.Background())
	if got != 2 {
		t.Fatalf("expected both records drained after the writer released the file, got %d", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected the drained journal deleted, stat err=%v", err)
	}
}
