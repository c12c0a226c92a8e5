// Command ingest runs one import from a file path or http(s) URL and prints
// the run summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjannette/finagg-backend/internal/config"
	"github.com/kjannette/finagg-backend/internal/db"
	"github.com/kjannette/finagg-backend/internal/importer"
	"github.com/kjannette/finagg-backend/internal/ingest"
	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/notifications"
	"github.com/kjannette/finagg-backend/internal/repository"
	"github.com/kjannette/finagg-backend/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	src := flag.String("source", cfg.ImportSource, "file path or http(s) URL to import")
	batch := flag.Int("batch", cfg.IngestBatchSize, "points per storage write")
	notify := flag.Bool("notify", true, "post the summary to WEBHOOK_URL when set")
	flag.Parse()

	if *src == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -source <path|url> [-batch N]")
		os.Exit(2)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Named("db").Fatalw("connection failed", "error", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Named("db").Fatalw("schema setup failed", "error", err)
	}

	loader := ingest.NewLoader(repository.NewPriceRepo(pool), *batch, log, nil)
	var opts []importer.Option
	if *notify {
		opts = append(opts, importer.WithNotifier(notifications.NewSender(cfg.WebhookURL, cfg.AppName, log.Named("notify"))))
	}
	imp := importer.New(loader, source.NewOpener(log.Named("retry")), log, opts...)

	sum, runErr := imp.Run(ctx, *src)

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(sum); err != nil {
		log.Errorw("print summary", "error", err)
	}

	if runErr != nil {
		pool.Close()
		log.Sync()
		os.Exit(1)
	}
}
