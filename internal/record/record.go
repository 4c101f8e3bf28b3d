// Package record defines CaptureRecord, the immutable wire type that
// crosses the Edge-to-Forge boundary over the pipe and the failover
// journal. It is deliberately a flat struct with a JSON-line wire format
// (one UTF-8 object per line, LF-terminated); the wire contract is fixed
// by collaborators outside this system (the capture script, the failover
// tailer) and cannot change shape without coordinating with them.
package record

import (
	"bufio"
	"encoding/json"
	"io"
	"time"
)

// Capture is one observed pixel request. It is constructed once in the
// Edge and never mutated afterward; every stage that receives one either
// forwards it unchanged or drops it.
type Capture struct {
	Company     string    `json:"company"`
	Pixel       string    `json:"pixel"`
	IP          string    `json:"ip"`
	Path        string    `json:"path"`
	Query       string    `json:"query"`
	HeadersJSON string    `json:"headers"`
	UserAgent   string    `json:"ua"`
	Referer     string    `json:"referer"`
	ReceivedAt  time.Time `json:"received_at"`
}

// AppendQuery returns a copy of the record with s appended to the query
// string, used by the Edge parser to append its _srv_* tokens. Kept as a value
// return (not a pointer mutation) so every pipeline stage can reason about
// ownership by move rather than shared mutable state.
func (c Capture) AppendQuery(s string) Capture {
	if s == "" {
		return c
	}
	if c.Query == "" {
		c.Query = s
	} else {
		c.Query = c.Query + "&" + s
	}
	return c
}

// MarshalLine encodes the record as a single JSON line terminated by LF.
func (c *Capture) MarshalLine() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteLine marshals and writes the record to w, used by both the pipe
// client and the failover journal writer.
func WriteLine(w io.Writer, c *Capture) error {
	b, err := c.MarshalLine()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Decode parses one JSON line into a Capture. Unknown fields are tolerated
// (encoding/json ignores them by default), matching the pipe protocol's
// "unknown fields on the reader are tolerated" contract.
func Decode(line []byte) (*Capture, error) {
	var c Capture
	if err := json.Unmarshal(line, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Scan reads newline-delimited records from r, invoking fn for each
// successfully decoded line and skipping (without aborting) malformed or
// empty ones. It returns the count of malformed lines skipped and any
// non-EOF scanner error.
func Scan(r io.Reader, fn func(*Capture) error) (malformed int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		c, derr := Decode(line)
		if derr != nil {
			malformed++
			continue
		}
		if err = fn(c); err != nil {
			return
		}
	}
	err = sc.Err()
	return
}
