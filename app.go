package main

import (
	"context"
	"fmt"

	"pricecart/cache"
	"pricecart/config"
	"pricecart/database"
	"pricecart/metrics"
	"pricecart/repository"
	"pricecart/scheduler"
	"pricecart/scraper"
	"pricecart/services"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the wired service components
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db        *sqlx.DB
	products  *repository.ProductRepository
	responses cache.Store

	pool       *scraper.BrowserPool
	platforms  *scraper.Registry
	aggregator *scraper.Aggregator
	merger     *services.Merger
	search     *services.SearchService
	scrapes    *services.ScrapeService
}

// newApp wires the scraping stack. With persist set it also opens the cache
// store and the search response cache.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, persist bool) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.New(reg),
	}

	merger, err := services.NewMerger(cfg.Merge.Strategy, cfg.Merge.Threshold)
	if err != nil {
		return nil, err
	}
	a.merger = merger

	launch := scraper.NewRodLauncher(scraper.LaunchOptions{
		Headless: cfg.Scraper.RunHeadless(),
		Bin:      cfg.Scraper.BrowserBin,
	}, log)
	a.pool = scraper.NewBrowserPool(launch, scraper.PoolOptions{
		MaxAge:      cfg.Scraper.PoolMaxAge,
		IdleTimeout: cfg.Scraper.PoolIdleTimeout,
	}, a.metrics, log)

	profiles := scraper.DefaultPlatforms()
	for _, p := range profiles {
		p.Timeout = cfg.Scraper.Timeout
	}
	a.platforms = scraper.NewRegistry(profiles, cfg.Platforms)
	a.aggregator = scraper.NewPipelineAggregator(a.platforms, scraper.NewRodFetcher(a.pool, log), scraper.DefaultLexicon(), a.metrics, log)

	var store services.ProductStore
	if persist {
		if err := a.openStores(ctx); err != nil {
			a.close()
			return nil, err
		}
		store = a.products
	}

	a.search = services.NewSearchService(a.aggregator, merger, store, a.responses, cfg.Cache.SearchTTL, a.metrics, log)
	if a.products != nil {
		a.scrapes = services.NewScrapeService(a.aggregator, a.products, a.platforms, a.metrics, log)
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.db = db
	if err := database.CreateTables(ctx, db); err != nil {
		return err
	}
	a.products = repository.NewProductRepository(db)
	a.log.Info("cache store ready", zap.String("driver", db.DriverName()))

	if a.cfg.Cache.SearchTTL > 0 {
		responses, err := cache.New(ctx, a.cfg.Cache.RedisURL, a.cfg.Cache.MemoryEntries, a.cfg.Cache.SearchTTL)
		if err != nil {
			return fmt.Errorf("failed to open search cache: %w", err)
		}
		a.responses = responses
		a.log.Info("search response cache enabled",
			zap.Duration("ttl", a.cfg.Cache.SearchTTL),
			zap.Bool("redis", a.cfg.Cache.RedisURL != ""),
		)
	}
	return nil
}

// jobs builds the cron scheduler over the pool and the popular refresh
func (a *app) jobs() *scheduler.Jobs {
	return scheduler.NewJobs(scheduler.JobsConfig{
		PoolCleanupSchedule: a.cfg.Scheduler.PoolCleanupSchedule,
		RefreshSchedule:     a.cfg.Scheduler.RefreshSchedule,
		RefreshLimit:        a.cfg.Scheduler.RefreshLimit,
	}, a.pool, a.products, a.scrapes.Live, a.log)
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Shutdown()
	}
	if a.responses != nil {
		if err := a.responses.Close(); err != nil {
			a.log.Warn("closing search cache failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing database failed", zap.Error(err))
		}
	}
}
