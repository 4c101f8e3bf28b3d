package capture

import (
	"net"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseHappyPathPublicIP(t *testing.T) {
	p := &Parser{}
	req := httptest.NewRequest("GET", "/acme/checkout_SMART.GIF?sw=1920&sh=1080&fp=abc123xyz", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	req.Header.Set("User-Agent", "test-agent")

	res, ip := p.Parse(req)
	if !res.OK {
		t.Fatalf("expected a well-formed pixel request to enqueue")
	}
	if res.Record.Company != "acme" || res.Record.Pixel != "checkout" {
		t.Fatalf("expected company/pixel to be extracted, got %+v", res.Record)
	}
	if ip.String() != "203.0.113.7" {
		t.Fatalf("expected public IP extracted, got %s", ip)
	}
	if !strings.Contains(res.Record.HeadersJSON, "test-agent") {
		t.Fatalf("expected whitelisted User-Agent header in HeadersJSON, got %s", res.Record.HeadersJSON)
	}
}

func TestParseRejectsNonPixelPath(t *testing.T) {
	p := &Parser{}
	req := httptest.NewRequest("GET", "/acme/checkout.png?sw=1920&sh=1080", nil)
	req.RemoteAddr = "203.0.113.7:1"
	res, _ := p.Parse(req)
	if res.OK {
		t.Fatalf("expected a non-pixel-suffixed path to be rejected")
	}
}

func TestParseRejectsShortQuery(t *testing.T) {
	p := &Parser{}
	req := httptest.NewRequest("GET", "/acme/checkout_SMART.GIF?a=1", nil)
	req.RemoteAddr = "203.0.113.7:1"
	res, _ := p.Parse(req)
	if res.OK {
		t.Fatalf("expected a too-short query string to be rejected")
	}
}

func TestParseRejectsMissingPixelToken(t *testing.T) {
	p := &Parser{}
	req := httptest.NewRequest("GET", "/acme/_SMART.GIF?sw=1920&sh=1080", nil)
	req.RemoteAddr = "203.0.113.7:1"
	res, _ := p.Parse(req)
	if res.OK {
		t.Fatalf("expected an empty pixel token to be rejected")
	}
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(ip net.IP, query string) []Token {
	return []Token{{Name: "_srv_ipType", Value: "Private"}}
}

func TestParseAppendsEnricherTokens(t *testing.T) {
	p := &Parser{Enrich: fakeEnricher{}}
	req := httptest.NewRequest("GET", "/acme/checkout_SMART.GIF?sw=1920&sh=1080", nil)
	req.RemoteAddr = "10.0.0.5:1"
	res, _ := p.Parse(req)
	if !res.OK {
		t.Fatalf("expected OK")
	}
	if !strings.Contains(res.Record.Query, "_srv_ipType=Private") {
		t.Fatalf("expected enricher token appended to query, got %q", res.Record.Query)
	}
}

func TestExtractIPHonorsHeaderPrecedenceAndFlattensV4Mapped(t *testing.T) {
	req := httptest.NewRequest("GET", "/x", nil)
	req.RemoteAddr = "198.51.100.9:1"
	req.Header.Set("X-Forwarded-For", "::ffff:203.0.113.5, 10.0.0.1")
	ip := ExtractIP(req)
	if ip.String() != "203.0.113.5" {
		t.Fatalf("expected first XFF token flattened to dotted-quad, got %s", ip)
	}
}

func TestExtractIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/x", nil)
	req.RemoteAddr = "198.51.100.9:443"
	ip := ExtractIP(req)
	if ip.String() != "198.51.100.9" {
		t.Fatalf("expected fallback to socket peer address, got %s", ip)
	}
}
