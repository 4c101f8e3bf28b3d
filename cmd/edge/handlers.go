package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartpixl/core/internal/capture"
	"github.com/smartpixl/core/pkg/log"
	"github.com/smartpixl/core/pkg/metrics"
)

// pixelGIF is the 43-byte single-frame transparent GIF returned for every
// capture request regardless of outcome: the pixel must always render,
// even mid-outage.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02,
	0x44, 0x01, 0x00, 0x3b,
}

type edgeServer struct {
	parser *capture.Parser
	queue  *capture.Queue
	lg     *log.Logger
}

func (s *edgeServer) router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/{company}/{pixel}_SMART.GIF", s.handleCapture)
	r.Get("/js/{company}/{pixel}.js", s.handleScriptStub)
	return r
}

// handleCapture is the pixel endpoint. It always returns the GIF; parse or
// enqueue failures are logged, never surfaced to the client.
func (s *edgeServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	result, _ := s.parser.Parse(r)
	if result.OK {
		s.queue.Push(result.Record)
		metrics.CapturesTotal.WithLabelValues("accepted").Inc()
	} else {
		s.lg.Debug("capture parse rejected", log.KV("path", r.URL.Path))
		metrics.CapturesTotal.WithLabelValues("rejected").Inc()
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// handleScriptStub serves the client-side collection script. The script's
// own content is built and deployed separately; this just proves the
// route exists and is reachable with the right headers.
func (s *edgeServer) handleScriptStub(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("/* collection script delivery is out of scope */\n"))
}

// healthHandler returns a trivial liveness response; the Edge's own
// criticality is mostly about queue depth, reported separately.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// queueDepthHandler exposes the capture queue's depth and cumulative drop
// count for internal/health's EdgeQueueDepth probe. Bound to a
// localhost-only listener, never the public bind.
func queueDepthHandler(q *capture.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"depth":   int64(q.Depth()),
			"dropped": q.Dropped(),
		})
	}
}
