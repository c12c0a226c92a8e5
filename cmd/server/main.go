package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/api"
	"github.com/kjannette/finagg-backend/internal/cache"
	"github.com/kjannette/finagg-backend/internal/calendar"
	"github.com/kjannette/finagg-backend/internal/config"
	"github.com/kjannette/finagg-backend/internal/db"
	"github.com/kjannette/finagg-backend/internal/importer"
	"github.com/kjannette/finagg-backend/internal/ingest"
	"github.com/kjannette/finagg-backend/internal/limits"
	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/metrics"
	"github.com/kjannette/finagg-backend/internal/notifications"
	"github.com/kjannette/finagg-backend/internal/repository"
	"github.com/kjannette/finagg-backend/internal/scheduler"
	"github.com/kjannette/finagg-backend/internal/source"
)

const banner = `
╔══════════════════════════════════════╗
║     Financial Aggregator API v0.1    ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.Named("db")
	dbLog.Infof("Connecting to %s:%d/%s ...", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		dbLog.Fatalw("connection failed", "error", err)
	}
	defer func() {
		pool.Close()
		dbLog.Info("connection pool closed")
	}()

	if err := db.TestConnection(ctx, pool, dbLog); err != nil {
		dbLog.Fatalw("test query failed", "error", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		dbLog.Fatalw("schema setup failed", "error", err)
	}

	// Storage, metrics and query path
	priceRepo := repository.NewPriceRepo(pool)
	collector := metrics.New()

	rangeCache, err := cache.NewRangeCache(priceRepo, cfg.RangeCacheSize, collector)
	if err != nil {
		log.Fatalw("range cache", "error", err)
	}
	guardian := limits.NewGuardian(limits.Limits{
		MaxRangeDays:   cfg.MaxRangeDays,
		MaxRangePoints: cfg.MaxRangePoints,
	}, rangeCache)
	engine := aggregate.NewEngine(rangeCache, aggregate.WithGuard(guardian), aggregate.WithObserver(collector))

	// Imports
	notify := notifications.NewSender(cfg.WebhookURL, cfg.AppName, log.Named("notify"))
	loader := ingest.NewLoader(priceRepo, cfg.IngestBatchSize, log, collector)
	imp := importer.New(loader, source.NewOpener(log.Named("retry")), log,
		importer.WithCache(rangeCache),
		importer.WithNotifier(notify),
		importer.WithObserver(collector),
	)

	// 1. API server
	srv := api.NewServer(api.Deps{
		Series:    engine,
		Companies: priceRepo,
		Importer:  imp,
		Calendar:  calendar.NYSE(),
		DB:        pool,
		Metrics:   collector.Handler(),
		Log:       log,
	}, api.Options{
		Port:           cfg.APIPort,
		APIKey:         cfg.APIKey,
		CORSOrigin:     cfg.CORSAllowOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxImportBytes: cfg.MaxImportBodySize,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Named("api").Fatalw("server error", "error", err)
		}
	}()

	// 2. Scheduled re-import
	var importSched *scheduler.ImportScheduler
	if cfg.ImportIntervalMinutes > 0 {
		importSched = scheduler.NewImportScheduler(imp, scheduler.ImportSchedulerConfig{
			Interval:   cfg.ImportInterval(),
			Source:     cfg.ImportSource,
			RunOnStart: true,
		}, log)
		importSched.Start()
	} else {
		log.Named("scheduler").Info("skipped, IMPORT_INTERVAL_MINUTES not set")
	}

	log.Info("all services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutting down gracefully...")

	if importSched != nil {
		importSched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Named("api").Errorw("shutdown error", "error", err)
	}
	log.Named("api").Info("server closed")
	log.Info("shutdown complete")
}
