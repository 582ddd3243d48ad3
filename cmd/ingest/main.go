package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-catalog-ingest/config"
	"github.com/aluiziolira/go-catalog-ingest/fetcher"
	"github.com/aluiziolira/go-catalog-ingest/models"
	"github.com/aluiziolira/go-catalog-ingest/parser"
	"github.com/aluiziolira/go-catalog-ingest/pipeline"
	"github.com/aluiziolira/go-catalog-ingest/scraper"
	"github.com/aluiziolira/go-catalog-ingest/storage"
)

func main() {
	defaultCfg := config.DefaultConfig()

	categoriesDefault := strings.Join(defaultCfg.Categories, ",")
	if values, ok := config.EnvStringSlice("INGEST_CATEGORIES"); ok {
		categoriesDefault = strings.Join(values, ",")
	}
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("INGEST_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid INGEST_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	concurrencyDefault := defaultCfg.Concurrency
	if value, ok, err := config.EnvInt("INGEST_CONCURRENCY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid INGEST_CONCURRENCY: %v\n", err)
		os.Exit(1)
	} else if ok {
		concurrencyDefault = value
	}
	modeDefault := defaultCfg.OutputMode
	if value, ok := config.EnvString("INGEST_MODE"); ok {
		modeDefault = value
	}
	bucketDefault, _ := config.EnvString("S3_BUCKET")
	endpointDefault, _ := config.EnvString("S3_ENDPOINT")
	regionDefault := defaultCfg.S3Region
	if value, ok := config.EnvString("S3_REGION"); ok {
		regionDefault = value
	}
	dsnDefault, _ := config.EnvString("POSTGRES_DSN")
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("INGEST_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Base URL of the catalog site")
	categories := flag.String("categories", categoriesDefault, "Comma-separated category list")
	maxPages := flag.Int("pages", pagesDefault, "Listing pages to visit per category")
	limitPerPage := flag.Int("limit", defaultCfg.LimitPerPage, "Maximum product URLs per listing page")
	concurrency := flag.Int("concurrency", concurrencyDefault, "Maximum concurrent requests")
	delayMs := flag.Int("delay", int(defaultCfg.RequestDelay/time.Millisecond), "Delay before each request (milliseconds)")
	timeoutSec := flag.Int("timeout", int(defaultCfg.Timeout/time.Second), "Per-request timeout (seconds)")
	outputMode := flag.String("mode", modeDefault, "Output mode: local or remote")
	outputDir := flag.String("output-dir", defaultCfg.OutputDir, "Directory for local mode category files")
	s3Bucket := flag.String("bucket", bucketDefault, "S3 bucket for image uploads (remote mode)")
	s3Region := flag.String("s3-region", regionDefault, "S3 region")
	s3Endpoint := flag.String("s3-endpoint", endpointDefault, "Custom S3 endpoint (MinIO, etc.)")
	postgresDSN := flag.String("pg-dsn", dsnDefault, "Postgres DSN (remote mode)")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.BaseURL = *baseURL
	cfg.Categories = config.SplitList(*categories)
	cfg.MaxPages = *maxPages
	cfg.LimitPerPage = *limitPerPage
	cfg.Concurrency = *concurrency
	cfg.RequestDelay = time.Duration(*delayMs) * time.Millisecond
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.OutputMode = strings.ToLower(*outputMode)
	cfg.OutputDir = *outputDir
	cfg.S3Bucket = *s3Bucket
	cfg.S3Region = *s3Region
	cfg.S3Endpoint = *s3Endpoint
	cfg.S3AccessKey, _ = config.EnvString("S3_ACCESS_KEY")
	cfg.S3SecretKey, _ = config.EnvString("S3_SECRET_KEY")
	cfg.PostgresDSN = *postgresDSN
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting ingestion run",
		slog.String("base_url", cfg.BaseURL),
		slog.Any("categories", cfg.Categories),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("mode", cfg.OutputMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metrics := fetcher.NewMetrics()
	pageFetcher := fetcher.New(cfg, metrics)

	discoverer, err := scraper.NewDiscoverer(cfg, metrics)
	if err != nil {
		slog.Error("initialising discoverer", slog.Any("error", err))
		os.Exit(1)
	}

	deps := pipeline.Deps{
		Fetcher:    pageFetcher,
		Discoverer: discoverer,
		Parser:     parser.NewStorefrontParser(),
		Metrics:    metrics,
	}

	// Storage and database clients are the only run-fatal setup: if
	// either cannot be established the run aborts before any work is
	// dispatched.
	switch cfg.OutputMode {
	case config.OutputLocal:
		sink, err := pipeline.NewJSONSink(cfg.OutputDir)
		if err != nil {
			slog.Error("creating local sink", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Sink = sink
	case config.OutputRemote:
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			slog.Error("initialising object storage", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Uploader = uploader

		store, err := storage.NewMetadataStore(ctx, cfg.PostgresDSN)
		if err != nil {
			slog.Error("initialising metadata store", slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		deps.Store = store
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	run, err := p.Run(ctx)
	if err != nil {
		slog.Error("ingestion failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(run, time.Since(startTime))
}

func printSummary(run *models.RunResult, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Ingestion complete")
	fmt.Printf("  Run ID:        %s\n", run.RunID)
	fmt.Printf("  URLs found:    %d\n", run.URLCount)

	categories := make([]string, 0, len(run.Categories))
	for category := range run.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		result := run.Categories[category]
		fmt.Printf("  %-14s %d persisted, %d failed\n", category+":", result.Persisted(), result.Failed())
	}

	fmt.Printf("  Total:         %d persisted, %d failed\n", run.TotalPersisted(), run.TotalFailed())
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
