// Package capture implements the Edge's low-allocation per-request parse
// path: converting an HTTP request head into a record.Capture, or deciding
// to degrade to pixel-only.
package capture

import (
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/smartpixl/core/internal/record"
)

const (
	pixelSuffix   = "_SMART.GIF"
	minQueryLen   = 10
	maxQueryBytes = 16 * 1024
	maxPathBytes  = 8 * 1024
)

// pathPattern extracts {company} and {pixel} from "/company/pixel_SMART.GIF".
// Compiled once at package init; never constructed on the hot path.
var pathPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)$`)

// whitelisted headers are the only ones serialized into HeadersJSON.
var whitelistedHeaders = []string{
	"User-Agent", "Referer", "Accept-Language", "Accept",
	"Sec-Ch-Ua", "Sec-Ch-Ua-Platform", "Dnt",
}

// builderPool recycles strings.Builder instances across requests so the
// header-JSON escape pass allocates nothing beyond the final string.
var builderPool = sync.Pool{
	New: func() interface{} { return new(strings.Builder) },
}

// Parser converts HTTP requests into capture records. All of its query
// methods are safe for concurrent use by many HTTP handler goroutines.
type Parser struct {
	Enrich HeaderEnricher
}

// HeaderEnricher supplies the Edge-side _srv_* tokens appended before
// enqueue (stability, velocity, datacenter, IP class, geo). Implemented by
// internal/capture.Services; split out as an interface so the parser has
// no import-time dependency on the concrete service wiring.
type HeaderEnricher interface {
	Enrich(ip net.IP, query string) []Token
}

// Token is a single _srv_<name>=<value> pair awaiting URL-encoding.
type Token struct {
	Name  string
	Value string
}

// Result is the parser's decision: either a record to enqueue, or nothing.
type Result struct {
	Record record.Capture
	OK     bool
}

// Parse never fails: any problem degrades to OK=false (pixel only, no
// enqueue).
func (p *Parser) Parse(r *http.Request) (Result, net.IP) {
	ip := ExtractIP(r)

	if len(r.URL.Path) > maxPathBytes {
		return Result{}, ip
	}
	company, pixel, ok := matchPath(r.URL.Path)
	if !ok {
		return Result{}, ip
	}

	rawQuery := r.URL.RawQuery
	if len(rawQuery) < minQueryLen || len(rawQuery) > maxQueryBytes {
		return Result{}, ip
	}

	headersJSON := escapeHeaders(r)

	rec := record.Capture{
		Company:     company,
		Pixel:       pixel,
		IP:          ip.String(),
		Path:        r.URL.Path,
		Query:       rawQuery,
		HeadersJSON: headersJSON,
		UserAgent:   r.UserAgent(),
		Referer:     r.Referer(),
		ReceivedAt:  time.Now().UTC(),
	}
	if p.Enrich != nil {
		toks := p.Enrich.Enrich(ip, rec.Query)
		rec = rec.AppendQuery(EncodeTokens(toks))
	}
	return Result{Record: rec, OK: true}, ip
}

// matchPath extracts company/pixel. The pixel suffix is verified first by
// a tail comparison, so paths without it are rejected with no regex work;
// only paths that pass run the pre-compiled pattern, whose
// FindStringSubmatch allocates one small submatch slice per call.
func matchPath(path string) (company, pixel string, ok bool) {
	if !hasPixelSuffix(path) {
		return
	}
	m := pathPattern.FindStringSubmatch(path)
	if len(m) != 3 {
		return
	}
	pixelTok := m[2]
	if len(pixelTok) <= len(pixelSuffix) {
		return
	}
	company = m[1]
	pixel = pixelTok[:len(pixelTok)-len(pixelSuffix)]
	ok = company != "" && pixel != ""
	return
}

// hasPixelSuffix is a case-insensitive tail comparison against
// pixelSuffix, byte by byte, so the hot path never allocates an
// upper-cased copy of the request path.
func hasPixelSuffix(path string) bool {
	if len(path) < len(pixelSuffix) {
		return false
	}
	tail := path[len(path)-len(pixelSuffix):]
	for i := 0; i < len(pixelSuffix); i++ {
		c := tail[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != pixelSuffix[i] {
			return false
		}
	}
	return true
}

// escapeHeaders serializes the header whitelist into a single JSON object
// using a pooled, reset-between-uses strings.Builder: no intermediate
// map[string]string, no fmt verbs, no regexp on the hot path.
func escapeHeaders(r *http.Request) string {
	b := builderPool.Get().(*strings.Builder)
	b.Reset()
	defer builderPool.Put(b)

	b.WriteByte('{')
	first := true
	for _, name := range whitelistedHeaders {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteByte('"')
		writeEscaped(b, name)
		b.WriteString(`":"`)
		writeEscaped(b, v)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// writeEscaped scans s byte by byte (a plain loop, not a vectorized search)
// for JSON-special bytes,
// copying runs verbatim and escaping only the characters that require it.
func writeEscaped(b *strings.Builder, s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		if i > start {
			b.WriteString(s[start:i])
		}
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigit(c >> 4))
			b.WriteByte(hexDigit(c & 0xf))
		}
		start = i + 1
	}
	if start < len(s) {
		b.WriteString(s[start:])
	}
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}
