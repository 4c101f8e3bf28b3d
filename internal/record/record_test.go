package record

import (
	"bytes"
	"testing"
	"time"
)

func TestMarshalLineDecodeRoundTrip(t *testing.T) {
	in := Capture{
		Company:     "acme",
		Pixel:       "checkout",
		IP:          "203.0.113.7",
		Path:        "/acme/checkout_SMART.GIF",
		Query:       "a=1&b=2",
		HeadersJSON: `{"User-Agent":"test\"agent"}`,
		UserAgent:   "test\"agent",
		Referer:     "https://example.com/",
		ReceivedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	line, err := in.MarshalLine()
	if err != nil {
		t.Fatalf("MarshalLine: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Fatalf("expected MarshalLine to terminate with LF")
	}
	out, err := Decode(bytes.TrimRight(line, "\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *out != in {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, *out)
	}
}

func TestAppendQueryJoinsWithAmpersand(t *testing.T) {
	c := Capture{Query: "a=1"}
	got := c.AppendQuery("_srv_x=1")
	if got.Query != "a=1&_srv_x=1" {
		t.Fatalf("expected joined query, got %q", got.Query)
	}
	// original is untouched (value receiver)
	if c.Query != "a=1" {
		t.Fatalf("expected AppendQuery not to mutate the receiver, got %q", c.Query)
	}
}

func TestAppendQueryOnEmptyRecordQuery(t *testing.T) {
	c := Capture{}
	got := c.AppendQuery("_srv_x=1")
	if got.Query != "_srv_x=1" {
		t.Fatalf("expected bare token when original query is empty, got %q", got.Query)
	}
}

func TestAppendQueryNoOpOnEmptyAddition(t *testing.T) {
	c := Capture{Query: "a=1"}
	if got := c.AppendQuery(""); got.Query != "a=1" {
		t.Fatalf("expected no-op on empty addition, got %q", got.Query)
	}
}

func TestScanSkipsMalformedAndEmptyLines(t *testing.T) {
	good1, _ := (&Capture{Company: "a", Pixel: "p1"}).MarshalLine()
	good2, _ := (&Capture{Company: "a", Pixel: "p2"}).MarshalLine()
	var buf bytes.Buffer
	buf.Write(good1)
	buf.WriteString("\n")              // blank line
	buf.WriteString("{not json\n")     // malformed
	buf.Write(good2)

	var got []string
	malformed, err := Scan(&buf, func(c *Capture) error {
		got = append(got, c.Pixel)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if malformed != 1 {
		t.Fatalf("expected exactly one malformed line skipped, got %d", malformed)
	}
	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("expected both well-formed records decoded in order, got %v", got)
	}
}
