// Package enrich implements the Forge's enrichment pipeline: a single
// signal-snapshot decode per record followed by a fixed, ordered chain of
// classifiers that each append zero or more _srv_* tokens. The chain is
// single-threaded per record; classifiers are never called concurrently
// for the same record.
package enrich

import (
	"net/url"
	"strings"

	"github.com/smartpixl/core/internal/record"
)

// Context carries one record through the chain: the record plus an
// appendable buffer of _srv_* tokens. Classifiers
// read the current query string (original plus prior appends) and append
// their own tokens; the final buffer is concatenated onto the record's
// query string before bulk write.
type Context struct {
	Record record.Capture
	tokens []token

	// edgeTokens holds the _srv_* tokens the Edge already appended (stability,
	// velocity, datacenter, ipType, geo) before the record ever crossed the
	// pipe, parsed once so Get can see them the same way it sees tokens
	// appended later in this pipeline pass.
	edgeTokens url.Values
}

type token struct {
	name  string
	value string
}

// NewContext builds a fresh enrichment context for one pipeline pass.
func NewContext(rec record.Capture) *Context {
	v, _ := url.ParseQuery(rec.Query)
	return &Context{Record: rec, edgeTokens: v}
}

// Append adds a _srv_<name>=<value> token. Safe to call repeatedly from
// the same classifier (e.g. once per produced field).
func (c *Context) Append(name, value string) {
	if value == "" {
		return // missing values are omitted, not appended empty
	}
	c.tokens = append(c.tokens, token{name: "_srv_" + name, value: value})
}

// Get returns the value of a token a prior classifier in the chain already
// appended under name (without the _srv_ prefix), letting later classifiers
// build on earlier results.
func (c *Context) Get(name string) (string, bool) {
	full := "_srv_" + name
	for i := len(c.tokens) - 1; i >= 0; i-- {
		if c.tokens[i].name == full {
			return c.tokens[i].value, true
		}
	}
	if vals, ok := c.edgeTokens[full]; ok && len(vals) > 0 {
		return vals[0], true
	}
	return "", false
}

// CurrentQuery returns the original query string plus every token appended
// so far, exactly as a classifier further down the chain would see it.
func (c *Context) CurrentQuery() string {
	if len(c.tokens) == 0 {
		return c.Record.Query
	}
	var b strings.Builder
	b.WriteString(c.Record.Query)
	for _, t := range c.tokens {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(t.name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(t.value))
	}
	return b.String()
}

// Finalize concatenates every appended token onto the record's query
// string and returns the record ready for bulk write.
func (c *Context) Finalize() record.Capture {
	c.Record.Query = c.CurrentQuery()
	return c.Record
}
