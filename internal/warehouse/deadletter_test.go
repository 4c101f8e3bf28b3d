package warehouse

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/smartpixl/core/internal/record"
)

func TestDeadLetterWriteAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dl := NewDeadLetter(dir)

	batch := []record.Capture{
		{Company: "acme", Pixel: "p1"},
		{Company: "acme", Pixel: "p2"},
	}
	if err := dl.Write(batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []string
	err := dl.Replay(func(c *record.Capture) error {
		got = append(got, c.Pixel)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("expected both records replayed in order, got %v", got)
	}
}

func TestDeadLetterReplayDeletesFileOnlyAfterFullSuccess(t *testing.T) {
	dir := t.TempDir()
	dl := NewDeadLetter(dir)
	dl.Write([]record.Capture{{Company: "acme", Pixel: "p1"}})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one dead-letter file before replay, got %d", len(entries))
	}
	namePattern := regexp.MustCompile(`^deadletter_\d{8}_\d{6}_[0-9a-f-]{36}\.json$`)
	if !namePattern.MatchString(entries[0].Name()) {
		t.Fatalf("dead-letter filename %q does not match deadletter_YYYYMMDD_HHMMSS_<uuid>.json", entries[0].Name())
	}
	b, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var arr []record.Capture
	if err := json.Unmarshal(b, &arr); err != nil {
		t.Fatalf("expected the file body to be a JSON array of records: %v", err)
	}
	if len(arr) != 1 || arr[0].Pixel != "p1" {
		t.Fatalf("unexpected array contents: %+v", arr)
	}

	if err := dl.Replay(func(c *record.Capture) error { return nil }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	entries, err = os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the dead-letter file removed after a clean replay, got %d remaining", len(entries))
	}
}

func TestDeadLetterReplayOnEmptyDirIsNoop(t *testing.T) {
	dl := NewDeadLetter(t.TempDir())
	if err := dl.Replay(func(c *record.Capture) error { return nil }); err != nil {
		t.Fatalf("expected no error replaying an empty directory, got %v", err)
	}
}
