package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutboundHTTPProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	if _, err := OutboundHTTP("up", ok.URL, nil, false).Check(context.Background()); err != nil {
		t.Fatalf("expected a 200 endpoint to pass, got %v", err)
	}
	if _, err := OutboundHTTP("down", failing.URL, nil, false).Check(context.Background()); err == nil {
		t.Fatal("expected a 5xx endpoint to fail the probe")
	}
	// 4xx means the endpoint is alive, just unhappy with the request.
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	if _, err := OutboundHTTP("missing", notFound.URL, nil, false).Check(context.Background()); err != nil {
		t.Fatalf("expected a 404 endpoint to count as reachable, got %v", err)
	}
}

func TestRecentErrorLogsProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.log")
	lines := []string{
		"2026-07-31T12:00:00Z INFO startup complete",
		"2026-07-31T12:00:05Z ERROR warehouse write failed",
		"2026-07-31T12:00:06Z ERROR warehouse write failed",
		"2026-07-31T12:00:10Z INFO batch flushed",
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := RecentErrorLogs(path, 200, 3).Check(context.Background()); err != nil {
		t.Fatalf("2 errors under a warn-at of 3 should pass, got %v", err)
	}
	if _, err := RecentErrorLogs(path, 200, 2).Check(context.Background()); err == nil {
		t.Fatal("2 errors at a warn-at of 2 should fail the probe")
	}
}

func TestEdgeQueueDepthProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"depth": 120, "dropped": 4}`))
	}))
	defer srv.Close()

	if _, err := EdgeQueueDepth(srv.URL, 1000).Check(context.Background()); err != nil {
		t.Fatalf("depth 120 under warn-at 1000 should pass, got %v", err)
	}
	if _, err := EdgeQueueDepth(srv.URL, 100).Check(context.Background()); err == nil {
		t.Fatal("depth 120 over warn-at 100 should fail the probe")
	}
}
