// Command forge is the SmartPiXL enrichment and persistence process: it
// accepts CaptureRecords from the Edge over a local socket (or sweeps them
// out of the Edge's failover journal), runs the classifier chain, and
// bulk-writes the enriched records into the warehouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartpixl/core/internal/contradiction"
	"github.com/smartpixl/core/internal/cultural"
	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/enrich/classifiers"
	"github.com/smartpixl/core/internal/failover"
	"github.com/smartpixl/core/internal/fingerprint"
	"github.com/smartpixl/core/internal/gpu"
	"github.com/smartpixl/core/internal/health"
	"github.com/smartpixl/core/internal/pipe"
	"github.com/smartpixl/core/internal/record"
	"github.com/smartpixl/core/internal/warehouse"
	"github.com/smartpixl/core/pkg/log"
	"github.com/smartpixl/core/pkg/metrics"
)

const appName = "smartpixl-forge"

func main() {
	configPath := flag.String("config", "/etc/smartpixl/forge.conf", "path to forge config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil && *configPath != "" {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	lg := log.New(os.Stderr)
	var logPath string
	if w, err := log.NewRotatingFile(cfg.Global.LogDir, appName); err == nil {
		lg.AddWriter(w)
		logPath = w.CurrentPath()
	} else {
		lg.Warn("failed to open rotating log file, continuing to stderr only", log.KVErr(err))
	}
	if lvl, err := log.ParseLevel(cfg.Global.LogLevel); err == nil {
		lg.SetLevel(lvl)
	}
	defer lg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Global.DatabaseDSN)
	if err != nil {
		lg.Fatal("failed to create warehouse pool: %v", err)
	}
	defer pool.Close()

	chain, tracker, replayCache := buildChain(cfg, pool, lg)
	go runFingerprintSweeper(ctx, tracker, replayCache, cfg.sweepInterval())

	out := make(chan record.Capture, cfg.Global.PipelineBuffer)
	p := enrich.NewPipeline(cfg.Global.PipelineBuffer, chain, out)
	go p.Run(ctx)

	dl := warehouse.NewDeadLetter(cfg.Global.DeadLetterDir)
	w := warehouse.NewWriter(out, pool, cfg.Global.RawTable, dl, lg)
	w.BatchSize = cfg.Global.BatchSize
	w.FlushEvery = time.Duration(cfg.Global.FlushSeconds) * time.Second
	w.RetryCount = cfg.Global.RetryCount
	w.MaxBackoff = time.Duration(cfg.Global.MaxBackoffSeconds) * time.Second
	w.DrainTimeout = time.Duration(cfg.Global.DrainTimeoutSeconds) * time.Second
	w.Breaker.Cooldown = time.Duration(cfg.Global.BreakerCooldownSeconds) * time.Second
	go w.Run(ctx)

	if err := dl.Replay(func(rec *record.Capture) error {
		if !p.EnqueueWait(ctx, rec) {
			return fmt.Errorf("enrichment pipeline unavailable during dead-letter replay")
		}
		return nil
	}); err != nil {
		lg.Warn("dead-letter replay incomplete", log.KVErr(err))
	}

	listener, err := pipe.Listen(cfg.Global.PipePath)
	if err != nil {
		lg.Fatal("failed to listen on pipe: %v", err)
	}
	pipeSrv := pipe.NewServer(listener, cfg.Global.PipeInstances, func(c context.Context, rec *record.Capture) bool {
		return p.TryEnqueue(rec)
	}, lg)
	go pipeSrv.Run(ctx)

	sweeper := failover.NewSweeper(cfg.Global.FailoverDir, cfg.sweepInterval(), cfg.sweepRecordWait(), func(c context.Context, rec *record.Capture) bool {
		return p.EnqueueWait(c, rec)
	}, lg)
	go sweeper.Run(ctx)

	go runETLTicker(ctx, pool, cfg.etlInterval(), lg)

	probes := []health.Probe{
		health.WarehousePing(pool, cfg.Global.RawTable),
		health.PipelineView(pool, cfg.Global.PipelineView, 10*time.Minute),
		health.EdgeQueueDepth(cfg.Global.EdgeHealthURL, cfg.Global.EdgeQueueWarnAt),
	}
	if logPath != "" {
		probes = append(probes, health.RecentErrorLogs(logPath, cfg.Global.LogTailLines, cfg.Global.LogWarnErrors))
	}
	for _, u := range cfg.Global.FrontEndProbeURLs {
		probes = append(probes, health.OutboundHTTP("frontend:"+u, u, nil, false))
	}
	checker := health.NewChecker(15*time.Second, probes...)
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		report := checker.Check(r.Context())
		rw.Header().Set("Content-Type", "application/json")
		if report.Status != health.StatusOK {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(rw, `{"status":%q}`, report.Status)
	})
	adminMux.HandleFunc("/internal/breaker/reset", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Breaker.Reset()
		lg.Info("circuit breaker manually reset")
		rw.WriteHeader(http.StatusNoContent)
	})
	adminMux.Handle("/metrics", metrics.Handler())
	adminSrv := &http.Server{Addr: cfg.Global.HealthBind, Handler: adminMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("health listener exited", log.KVErr(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	lg.Info("shutdown signal received", log.KV("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	cancel()
	time.Sleep(time.Duration(cfg.Global.DrainTimeoutSeconds) * time.Second) // let the writer finish its drain
	lg.Info("forge shutdown complete")
}

// buildChain loads every classifier's reference data and wires the catalog
// in its declared order. It also returns the fingerprint tracker and replay
// cache so the caller can run their periodic eviction sweeps.
func buildChain(cfg *cfgType, pool *pgxpool.Pool, lg *log.Logger) (*enrich.Chain, *fingerprint.Tracker, *fingerprint.ReplayCache) {
	botUA, err := classifiers.NewBotUA(cfg.Global.BotUAFile)
	if err != nil {
		lg.Fatal("failed to load bot UA data: %v", err)
	}
	uaParse, err := classifiers.NewUAParse(cfg.Global.UAParseRegexesFile, cfg.Global.DeviceDetectorFile)
	if err != nil {
		lg.Fatal("failed to load ua-parser regex database: %v", err)
	}
	cloudHostnames, err := classifiers.LoadCloudHostnames(cfg.Global.CloudHostnamesFile)
	if err != nil {
		lg.Fatal("failed to load cloud hostnames: %v", err)
	}
	maxmind, err := classifiers.NewMaxMind(cfg.Global.MaxMindCityDB, cfg.Global.MaxMindASNDB)
	if err != nil {
		lg.Fatal("failed to open MaxMind databases: %v", err)
	}
	gpuTable, err := gpu.Load(cfg.Global.GPUTiersFile)
	if err != nil {
		lg.Fatal("failed to load GPU tier table: %v", err)
	}
	culturalTable, err := cultural.Load(cfg.Global.CulturalFile)
	if err != nil {
		lg.Fatal("failed to load cultural reference data: %v", err)
	}
	contradictionRules, err := contradiction.Load(cfg.Global.ContradictionsFile)
	if err != nil {
		lg.Fatal("failed to load contradiction rules: %v", err)
	}
	ipapi := classifiers.NewIPAPI(cfg.Global.IPAPIBaseURL, cfg.Global.IPAPIKey, 0, cfg.Global.IPAPIRatePerMinute)
	ipapi.Store = warehouse.NewGeoStore(pool, cfg.Global.GeoTable)
	ipapi.StaleAfter = time.Duration(cfg.Global.IPAPIStaleDays) * 24 * time.Hour
	tracker := fingerprint.NewTracker(cfg.sessionGap(), cfg.crossCustomerWindow())
	replayCache := fingerprint.NewReplayCache()

	chain := enrich.NewChain(lg,
		botUA,
		uaParse,
		classifiers.NewRDNS(2*time.Second, cloudHostnames),
		maxmind,
		ipapi,
		classifiers.NewWhois(0),
		classifiers.NewCrossCustomer(tracker),
		classifiers.NewSession(tracker),
		classifiers.NewAffluence(gpuTable),
		classifiers.NewArbitrage(culturalTable),
		classifiers.NewDeviceAge(gpuTable),
		classifiers.NewContradiction(contradictionRules),
		classifiers.NewReplay(replayCache),
		classifiers.NewDeadInternet(),
		classifiers.NewLeadScore(),
	)
	return chain, tracker, replayCache
}

// runFingerprintSweeper periodically evicts stale cross-customer/session
// state and replay-cache entries, on the same cadence as the failover
// sweeper, until ctx is cancelled.
func runFingerprintSweeper(ctx context.Context, tracker *fingerprint.Tracker, replayCache *fingerprint.ReplayCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tracker.Sweep(time.Now())
			replayCache.Sweep(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// runETLTicker periodically invokes the warehouse's rollup procedures.
// ETL advances on a fixed schedule, never per-record.
func runETLTicker(ctx context.Context, pool *pgxpool.Pool, interval time.Duration, lg *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := pool.Exec(ctx, "CALL refresh_pipeline_rollups()"); err != nil {
				lg.Error("ETL rollup call failed", log.KVErr(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
