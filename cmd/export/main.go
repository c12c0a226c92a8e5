// Command export writes price, SMA and EMA columns for one or more companies,
// one file per company.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/config"
	"github.com/kjannette/finagg-backend/internal/db"
	"github.com/kjannette/finagg-backend/internal/export"
	"github.com/kjannette/finagg-backend/internal/limits"
	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
	"github.com/kjannette/finagg-backend/internal/repository"
)

func main() {
	companies := flag.String("companies", "", "comma-separated companies (default: all stored)")
	start := flag.String("start", "", "first date, YYYY-MM-DD")
	end := flag.String("end", "", "last date, YYYY-MM-DD")
	window := flag.Int("window", 20, "SMA window in rows")
	period := flag.Int("period", 20, "EMA period N, smoothing = 2/(N+1)")
	format := flag.String("format", "csv", "csv | json | parquet | xlsx")
	outDir := flag.String("out", ".", "output directory")
	parallel := flag.Int("parallel", 4, "companies exported concurrently")
	flag.Parse()

	from, err1 := time.Parse(models.DayLayout, *start)
	to, err2 := time.Parse(models.DayLayout, *end)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(os.Stderr, "usage: export -start YYYY-MM-DD -end YYYY-MM-DD [-companies A,B] [-format csv] [-out dir]")
		os.Exit(2)
	}
	saver := export.NewSaver(*format)
	if saver == nil {
		fmt.Fprintf(os.Stderr, "unsupported format %q (use csv, json, parquet, xlsx)\n", *format)
		os.Exit(2)
	}
	if err := checkParallel(*parallel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	smoothing, err := aggregate.SmoothingFromPeriod(*period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.Named("export")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		log.Fatalw("database connection failed", "error", err)
	}
	defer pool.Close()

	repo := repository.NewPriceRepo(pool)
	engine := aggregate.NewEngine(repo, aggregate.WithGuard(limits.NewGuardian(limits.Limits{
		MaxRangeDays:   cfg.MaxRangeDays,
		MaxRangePoints: cfg.MaxRangePoints,
	}, repo)))

	var names []string
	if *companies != "" {
		for _, c := range strings.Split(*companies, ",") {
			if c = strings.TrimSpace(c); c != "" {
				names = append(names, c)
			}
		}
	} else if names, err = repo.ListCompanies(ctx); err != nil {
		log.Fatalw("list companies", "error", err)
	}

	files, err := export.FileNames(names, saver.Extension())
	if err != nil {
		log.Fatalw("output file names", "error", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalw("create output directory", "dir", *outDir, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for company, file := range files {
		g.Go(func() error {
			rows, err := export.Build(gctx, engine, export.Request{
				Company: company, Start: from, End: to, Window: *window, Smoothing: smoothing,
			})
			if err != nil {
				return err
			}
			path := filepath.Join(*outDir, file)
			if err := export.SaveFile(saver, rows, path); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			log.Infow("exported", "company", company, "rows", len(rows), "path", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorw("export failed", "error", err)
		pool.Close()
		log.Sync()
		os.Exit(1)
	}
	log.Infow("export complete", "companies", len(files), "format", saver.Extension())
}

// checkParallel rejects worker counts errgroup.SetLimit cannot run with:
// a limit of 0 blocks the first Go call forever.
func checkParallel(n int) error {
	if n < 1 {
		return fmt.Errorf("-parallel must be >= 1, got %d", n)
	}
	return nil
}
