package pipe

import (
	"context"
	"net"
	"time"

	"github.com/smartpixl/core/internal/record"
	"github.com/smartpixl/core/pkg/log"
)

// Server runs N concurrent accept loops against one listener so that one
// instance handling a connection never blocks another from accepting the
// next. One goroutine per live connection, each owning its own net.Conn.
type Server struct {
	Listener  net.Listener
	Instances int
	Enqueue   func(ctx context.Context, rec *record.Capture) bool
	Logger    *log.Logger

	reconnectDelay time.Duration
}

func NewServer(l net.Listener, instances int, enqueue func(context.Context, *record.Capture) bool, lg *log.Logger) *Server {
	if instances <= 0 {
		instances = 4
	}
	return &Server{Listener: l, Instances: instances, Enqueue: enqueue, Logger: lg, reconnectDelay: 200 * time.Millisecond}
}

// Run blocks until ctx is cancelled, spawning Instances accept loops.
func (s *Server) Run(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Listener.Close()
		case <-done:
		}
	}()

	n := s.Instances
	results := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			s.acceptLoop(ctx, id)
			results <- struct{}{}
		}(i)
	}
	for i := 0; i < n; i++ {
		<-results
	}
}

func (s *Server) acceptLoop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.Logger != nil {
				s.Logger.Warn("pipe accept failed", log.KV("instance", id), log.KVErr(err))
			}
			select {
			case <-time.After(s.reconnectDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		s.handleConn(ctx, conn, id)
	}
}

// handleConn reads newline-delimited CaptureRecords until EOF or error,
// never blocking on the enrichment channel: a full channel drops the
// record with a warning instead of stalling the pipe reader.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, id int) {
	defer conn.Close()
	malformed, err := record.Scan(conn, func(rec *record.Capture) error {
		if !s.tryEnqueue(ctx, rec) {
			if s.Logger != nil {
				s.Logger.Warn("enrichment channel full, dropping record", log.KV("instance", id))
			}
		}
		return nil
	})
	if err != nil && s.Logger != nil && ctx.Err() == nil {
		s.Logger.Debug("pipe connection closed", log.KV("instance", id), log.KVErr(err))
	}
	if malformed > 0 && s.Logger != nil {
		s.Logger.Warn("malformed lines skipped", log.KV("instance", id), log.KV("count", malformed))
	}
}

// tryEnqueue hands rec to the wired Enqueue callback, which must itself be
// non-blocking (internal/enrich.Pipeline.TryEnqueue uses a select/default
// channel send); the pipe reader never waits on the enrichment channel.
func (s *Server) tryEnqueue(ctx context.Context, rec *record.Capture) bool {
	return s.Enqueue(ctx, rec)
}
