// Command edge is the SmartPiXL capture process: an HTTP listener that
// serves the tracking pixel, performs fast inline enrichment, and forwards
// captured records to the Forge process over a local socket, with
// journal-backed failover when the Forge is unreachable.
package main

import (
	"context"
	"flag"
	"fmt"
	dlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartpixl/core/internal/capture"
	"github.com/smartpixl/core/internal/failover"
	"github.com/smartpixl/core/internal/geo"
	"github.com/smartpixl/core/internal/stability"
	"github.com/smartpixl/core/pkg/log"
	"github.com/smartpixl/core/pkg/metrics"
)

const appName = "smartpixl-edge"

func main() {
	configPath := flag.String("config", "/etc/smartpixl/edge.conf", "path to edge config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil && *configPath != "" {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	lg := log.New(os.Stderr)
	if w, err := log.NewRotatingFile(cfg.Global.LogDir, appName); err == nil {
		lg.AddWriter(w)
	} else {
		lg.Warn("failed to open rotating log file, continuing to stderr only", log.KVErr(err))
	}
	if lvl, err := log.ParseLevel(cfg.Global.LogLevel); err == nil {
		lg.SetLevel(lvl)
	}
	defer lg.Close()

	cidr := geo.NewCIDRTable()
	if n, err := cidr.Load(cfg.Global.CIDRDataFile); err != nil {
		lg.Warn("failed to load datacenter CIDR table, continuing without it", log.KVErr(err))
	} else {
		lg.Info("loaded datacenter CIDR table", log.KV("entries", n))
	}

	services := &capture.Services{
		Stability: stability.NewTracker(15*time.Minute, 24*time.Hour),
		Velocity:  stability.NewVelocity(5*time.Minute, 15*time.Second),
		CIDR:      cidr,
		GeoCache:  geo.NewCache(10000, 30*time.Minute),
	}

	parser := &capture.Parser{Enrich: services}
	queue := capture.NewQueue(cfg.Global.QueueCapacity)
	journal, err := failover.NewJournal(cfg.Global.FailoverDir)
	if err != nil {
		lg.Fatal("failed to open failover journal: %v", err)
	}

	writer := &capture.Writer{
		Queue:         queue,
		PipePath:      cfg.Global.PipePath,
		ConnectTO:     cfg.connectTimeout(),
		RetryInterval: cfg.retryInterval(),
		Journal:       journal,
		Logger:        lg,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go writer.Run(ctx)

	srv := &edgeServer{parser: parser, queue: queue, lg: lg}
	httpSrv := &http.Server{
		Addr:              cfg.Global.Bind,
		Handler:           srv.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          dlog.New(lg, "", 0),
	}

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/health", healthHandler)
	adminMux.HandleFunc("/internal/queue-depth", queueDepthHandler(queue))
	adminMux.Handle("/metrics", metrics.Handler())
	adminSrv := &http.Server{
		Addr:              cfg.Global.HealthBind,
		Handler:           adminMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 2)
	go func() {
		lg.Info("capture listener starting", log.KV("bind", cfg.Global.Bind))
		done <- httpSrv.ListenAndServe()
	}()
	go func() {
		done <- adminSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("listener exited unexpectedly", log.KVErr(err))
		}
	case sig := <-sigCh:
		lg.Info("shutdown signal received", log.KV("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	cancel()
	_ = journal.Close()
	lg.Info("edge shutdown complete")
}
