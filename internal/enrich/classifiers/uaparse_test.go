package classifiers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDeviceTypeBucketing(t *testing.T) {
	tests := []struct {
		ua     string
		family string
		want   string
	}{
		{"Mozilla/5.0 (compatible; Googlebot/2.1)", "Spider", "bot"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "iPad", "tablet"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iPhone", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14; SM-S921B) Mobile", "Samsung SM-S921B", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "Other", "desktop"},
	}
	for _, tc := range tests {
		if got := deviceType(tc.ua, tc.family); got != tc.want {
			t.Errorf("deviceType(%q, %q) = %q, want %q", tc.ua, tc.family, got, tc.want)
		}
	}
}

func TestSupplementalDeviceFirstMatchWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_detector.yaml")
	data := "devices:\n" +
		"  - { marker: SM-S92, brand: Samsung, model: Galaxy S24 }\n" +
		"  - { marker: samsung, brand: Samsung, model: \"\" }\n"
	if err := os.WriteFile(path, []byte(data), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	devices, err := loadDeviceTable(path)
	if err != nil {
		t.Fatalf("loadDeviceTable: %v", err)
	}

	brand, model := supplementalDevice(devices, "Mozilla/5.0 (Linux; Android 14; SM-S921B) Mobile")
	if brand != "Samsung" || model != "Galaxy S24" {
		t.Fatalf("got %q/%q, want the narrower SM-S92 row to win", brand, model)
	}
	if b, _ := supplementalDevice(devices, "some unrecognized string"); b != "" {
		t.Fatalf("expected no match, got brand %q", b)
	}
}

func TestJoinVersionStopsAtFirstEmptyPart(t *testing.T) {
	if v := joinVersion("120", "0", "6099"); v != "120.0.6099" {
		t.Fatalf("got %q", v)
	}
	if v := joinVersion("17", "", "1"); v != "17" {
		t.Fatalf("expected truncation at the empty minor, got %q", v)
	}
	if v := joinVersion("", "", ""); v != "" {
		t.Fatalf("expected empty, got %q", v)
	}
}
