package classifiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/record"
)

func loadTestBotUA(t *testing.T) *BotUA {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_ua.yaml")
	data := "patterns:\n  - Googlebot\n  - HeadlessChrome\n  - python-requests\n"
	if err := os.WriteFile(path, []byte(data), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c, err := NewBotUA(path)
	if err != nil {
		t.Fatalf("NewBotUA: %v", err)
	}
	return c
}

func TestBotUAFlagsKnownBots(t *testing.T) {
	c := loadTestBotUA(t)
	tests := []struct {
		ua        string
		wantBot   bool
		signature string
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true, "googlebot"},
		{"Mozilla/5.0 HeadlessChrome/120.0", true, "headlesschrome"},
		{"python-requests/2.31.0", true, "python-requests"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", false, ""},
		{"", false, ""},
	}
	for _, tc := range tests {
		ctx := enrich.NewContext(record.Capture{})
		snap := enrich.BuildSnapshot("ua=x")
		snap.UA = tc.ua
		if err := c.Classify(&snap, ctx); err != nil {
			t.Fatalf("Classify(%q): %v", tc.ua, err)
		}
		_, flagged := ctx.Get("knownBot")
		if flagged != tc.wantBot {
			t.Errorf("UA %q: knownBot=%v, want %v", tc.ua, flagged, tc.wantBot)
		}
		if tc.wantBot {
			if sig, _ := ctx.Get("uaFamily"); sig != tc.signature {
				t.Errorf("UA %q: uaFamily=%q, want %q", tc.ua, sig, tc.signature)
			}
		}
	}
}

func TestBotUAMatchIsCaseInsensitive(t *testing.T) {
	c := loadTestBotUA(t)
	ctx := enrich.NewContext(record.Capture{})
	snap := enrich.BuildSnapshot("")
	snap.UA = "GOOGLEBOT-Image/1.0"
	if err := c.Classify(&snap, ctx); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, ok := ctx.Get("knownBot"); !ok {
		t.Fatal("expected a case-insensitive match on GOOGLEBOT")
	}
}
