package capture

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartpixl/core/internal/failover"
	"github.com/smartpixl/core/internal/pipe"
	"github.com/smartpixl/core/internal/record"
)

func TestWriterForwardsRecordsOverPipe(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "forge.sock")
	journalDir := filepath.Join(dir, "failover")

	ln, err := pipe.Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	lines := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	journal, err := failover.NewJournal(journalDir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer journal.Close()

	q := NewQueue(16)
	w := &Writer{
		Queue:         q,
		PipePath:      sockPath,
		ConnectTO:     time.Second,
		RetryInterval: 50 * time.Millisecond,
		Journal:       journal,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Push(record.Capture{Company: "acme", Pixel: "p1", IP: "8.8.8.8"})

	select {
	case line := <-lines:
		rec, err := record.Decode([]byte(line))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if rec.Company != "acme" || rec.Pixel != "p1" {
			t.Fatalf("unexpected record over pipe: %+v", rec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("record never arrived over the pipe")
	}

	// With the pipe healthy, nothing should land in the journal.
	if n := journalLineCount(t, journalDir); n != 0 {
		t.Fatalf("expected an empty journal while the pipe is up, found %d lines", n)
	}
}

func TestWriterFailsOverToJournalWhenPipeIsDown(t *testing.T) {
	dir := t.TempDir()
	journalDir := filepath.Join(dir, "failover")

	journal, err := failover.NewJournal(journalDir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer journal.Close()

	q := NewQueue(16)
	w := &Writer{
		Queue:         q,
		PipePath:      filepath.Join(dir, "nobody-home.sock"),
		ConnectTO:     50 * time.Millisecond,
		RetryInterval: 50 * time.Millisecond,
		Journal:       journal,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 3; i++ {
		q.Push(record.Capture{Company: "acme", Pixel: "p", IP: "8.8.8.8"})
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if journalLineCount(t, journalDir) == 3 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected 3 records in today's journal, found %d", journalLineCount(t, journalDir))
}

func journalLineCount(t *testing.T, dir string) int {
	t.Helper()
	path := filepath.Join(dir, failover.FileName(time.Now()))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("ReadFile: %v", err)
	}
	return strings.Count(string(b), "\n")
}
