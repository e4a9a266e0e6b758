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
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/api"
	"github.com/antedotee/mad-project-price-tracker/config"
	"github.com/antedotee/mad-project-price-tracker/lookup"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/pipeline"
	"github.com/antedotee/mad-project-price-tracker/pricing"
	"github.com/antedotee/mad-project-price-tracker/scraper"
	"github.com/antedotee/mad-project-price-tracker/scrapejob"
	"github.com/antedotee/mad-project-price-tracker/store"
	"github.com/antedotee/mad-project-price-tracker/store/memory"
	"github.com/antedotee/mad-project-price-tracker/store/postgres"
	"github.com/antedotee/mad-project-price-tracker/telemetry"
)

const (
	serviceName    = "price-tracker"
	serviceVersion = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	dsn := flag.String("database-url", cfg.DatabaseURL, "Postgres DSN; empty uses the in-memory store")
	catalogFile := flag.String("catalog", cfg.CatalogFile, "Static product catalog (JSON)")
	workers := flag.Int("workers", cfg.Workers, "Concurrent store operations per run")
	batchSize := flag.Int("batch", cfg.BatchSize, "Products updated per run")
	interval := flag.Duration("interval", cfg.UpdateInterval, "Price update interval; 0 disables the scheduler")
	source := flag.String("price-source", cfg.PriceSource, "Price source: simulated or scrape")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")
	flag.Parse()

	applyFlags(cfg, *addr, *dsn, *catalogFile, *workers, *batchSize, *interval, *source, *verbose)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := run(cfg); err != nil {
		slog.Error("tracker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, addr, dsn, catalogFile string, workers, batchSize int, interval time.Duration, source string, verbose bool) {
	cfg.HTTPAddr = addr
	cfg.DatabaseURL = dsn
	cfg.CatalogFile = catalogFile
	cfg.Workers = workers
	cfg.BatchSize = batchSize
	cfg.UpdateInterval = interval
	cfg.PriceSource = strings.ToLower(source)
	cfg.Verbose = verbose
}

func run(cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTELExporterHost != "" {
		exporter, xerr := telemetry.NewGRPCExporter(ctx, cfg.OTELExporterHost)
		if xerr != nil {
			return fmt.Errorf("otel exporter: %w", xerr)
		}
		shutdown, serr := telemetry.Setup(ctx, serviceName, serviceVersion, exporter)
		if serr != nil {
			return fmt.Errorf("otel setup: %w", serr)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = errors.Join(err, shutdown(shutdownCtx))
		}()
		slog.Info("tracing enabled", slog.String("exporter", cfg.OTELExporterHost))
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("close store", slog.Any("error", cerr))
		}
	}()

	m := metrics.New()

	var static *lookup.StaticCatalogLookup
	if cfg.CatalogFile != "" {
		static, err = lookup.LoadStaticCatalog(cfg.CatalogFile)
		if err != nil {
			slog.Warn("static catalog unavailable", slog.String("path", cfg.CatalogFile), slog.Any("error", err))
		} else {
			slog.Info("static catalog loaded", slog.String("path", cfg.CatalogFile), slog.Int("products", static.Len()))
		}
	}

	// static is appended only when loaded; a typed nil would pass NewFallback's nil check.
	tiers := []lookup.ProductLookup{lookup.PrimaryStoreLookup{Store: st}}
	if static != nil {
		tiers = append(tiers, static)
	}
	cached, err := lookup.NewCached(lookup.NewFallback(tiers...), cfg.LookupCacheSize)
	if err != nil {
		return err
	}

	ingestor := pipeline.NewIngestor(st, cfg.StoreTimeout, m)
	ingestor.SetInvalidator(cached)
	if static != nil {
		if err := seedCatalog(ctx, st, ingestor, static); err != nil {
			return err
		}
	}

	var priceSource pricing.Source
	switch cfg.PriceSource {
	case config.PriceSourceScrape:
		priceSource = scraper.NewPageSource(cfg, m)
	default:
		priceSource = pricing.NewSimulator(cfg.MaxChange, nil)
	}

	checker := pipeline.NewChecker(st, cfg.Workers, cfg.StoreTimeout, m)
	updater := pipeline.NewUpdater(cfg, st, priceSource, checker, m)
	updater.SetInvalidator(cached)

	svc := api.Services{
		Store:    st,
		Lookup:   cached,
		Checker:  checker,
		Updater:  updater,
		Ingestor: ingestor,
		Linker:   pipeline.NewLinker(cached, st, cfg.LinkLimit, cfg.StoreTimeout, m),
		Tracking: pipeline.NewTracking(st, cfg.StoreTimeout),
		Metrics:  m,
	}
	if cfg.ScrapeEnabled {
		svc.Scrape = scrapejob.NewClient(cfg)
		slog.Info("scrape vendor enabled", slog.String("api_key", cfg.MaskedScrapeAPIKey()))
	}

	if cfg.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(svc, api.Options{CORSOrigins: cfg.CORSOrigins, StoreTimeout: cfg.StoreTimeout}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if cfg.UpdateInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updater.RunEvery(ctx, cfg.UpdateInterval)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("price_source", cfg.PriceSource),
			slog.Duration("update_interval", cfg.UpdateInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.Any("error", err))
	}
	wg.Wait()
	slog.Info("graceful shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("using in-memory store")
		return memory.New(), nil
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.OTELExporterHost != "")
	if err != nil {
		return nil, err
	}
	st, err := postgres.New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("using postgres store")
	return st, nil
}

// seedCatalog loads the static catalog into an empty store so the updater
// has priced products to work on.
func seedCatalog(ctx context.Context, st store.Store, ingestor *pipeline.Ingestor, static *lookup.StaticCatalogLookup) error {
	existing, err := st.ListProducts(ctx, 1)
	if err != nil {
		return fmt.Errorf("check catalog: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if _, err := ingestor.Seed(ctx, static.Records()); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
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
