// Package rotate implements day-rolling log file rotation shared by the
// Edge and Forge loggers and by the health probe's log tail scan.
package rotate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const perm = 0640

// Writer is an io.WriteCloser that rolls to a new file named
// prefix_YYYY_MM_DD.log whenever the UTC date changes.
type Writer struct {
	mu     sync.Mutex
	dir    string
	prefix string
	day    string
	fout   *os.File
}

// Open creates (or appends to) today's file under dir.
func Open(dir, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	w := &Writer{dir: dir, prefix: prefix}
	if err := w.rollLocked(time.Now().UTC()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) pathFor(day string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.prefix, day))
}

func (w *Writer) rollLocked(now time.Time) error {
	day := now.Format("2006_01_02")
	if day == w.day && w.fout != nil {
		return nil
	}
	fout, err := os.OpenFile(w.pathFor(day), os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	old := w.fout
	w.fout = fout
	w.day = day
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rollLocked(time.Now().UTC()); err != nil {
		return 0, err
	}
	return w.fout.Write(p)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fout == nil {
		return nil
	}
	err := w.fout.Close()
	w.fout = nil
	return err
}

// CurrentPath returns today's active log file path.
func (w *Writer) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathFor(w.day)
}

// TailLines reads up to the last n lines of path. Used by the health probe
// to scan for ERROR lines without holding the rotate lock.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	lines := splitLines(buf)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				lines = append(lines, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}
