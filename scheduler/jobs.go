package scheduler

import (
	"context"
	"fmt"
	"sync"

	"pricecart/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PoolCleaner evicts stale browsers
type PoolCleaner interface {
	Cleanup() int
}

// NameSource lists the cached products worth refreshing
type NameSource interface {
	PopularNames(ctx context.Context, limit int) ([]string, error)
}

// JobsConfig holds the cron specs, with seconds
type JobsConfig struct {
	PoolCleanupSchedule string
	RefreshSchedule     string
	RefreshLimit        int
}

// Jobs runs the periodic pool sweep and popular product refresh
type Jobs struct {
	cron    *cron.Cron
	cfg     JobsConfig
	pool    PoolCleaner
	names   NameSource
	scrape  LiveScrapeFunc
	log     *zap.Logger
	running sync.Mutex
}

// NewJobs creates the scheduler. pool, names and scrape may be nil to skip a job.
func NewJobs(cfg JobsConfig, pool PoolCleaner, names NameSource, scrape LiveScrapeFunc, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{
		cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		pool:   pool,
		names:  names,
		scrape: scrape,
		log:    log,
	}
}

// Start registers the jobs and starts the cron loop. An empty schedule
// disables its job.
func (j *Jobs) Start() error {
	if j.pool != nil && j.cfg.PoolCleanupSchedule != "" {
		if _, err := j.cron.AddFunc(j.cfg.PoolCleanupSchedule, j.CleanupPool); err != nil {
			return fmt.Errorf("failed to schedule pool cleanup: %w", err)
		}
	}
	if j.names != nil && j.scrape != nil && j.cfg.RefreshSchedule != "" {
		if _, err := j.cron.AddFunc(j.cfg.RefreshSchedule, func() { j.RefreshPopular(context.Background()) }); err != nil {
			return fmt.Errorf("failed to schedule popular refresh: %w", err)
		}
	}

	j.cron.Start()
	j.log.Info("scheduler started",
		zap.String("pool_cleanup", j.cfg.PoolCleanupSchedule),
		zap.String("refresh", j.cfg.RefreshSchedule),
		zap.Int("jobs", len(j.cron.Entries())),
	)
	return nil
}

// Stop stops the cron loop and waits for running jobs
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
}

// CleanupPool evicts idle and expired browsers
func (j *Jobs) CleanupPool() {
	if n := j.pool.Cleanup(); n > 0 {
		j.log.Info("browser pool cleanup", zap.Int("evicted", n))
	}
}

// RefreshPopular re-scrapes the most compared products one at a time so the
// popular list stays fresh. Overlapping runs are skipped.
func (j *Jobs) RefreshPopular(ctx context.Context) int {
	if !j.running.TryLock() {
		j.log.Warn("popular refresh still running, skipping")
		return 0
	}
	defer j.running.Unlock()

	limit := j.cfg.RefreshLimit
	if limit <= 0 {
		limit = 5
	}

	names, err := j.names.PopularNames(ctx, limit)
	if err != nil {
		j.log.Error("failed to load popular products", zap.Error(err))
		return 0
	}
	if len(names) == 0 {
		j.log.Debug("no products to refresh")
		return 0
	}

	j.log.Info("refreshing popular products", zap.Int("count", len(names)))
	refreshed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		res, err := j.scrape(ctx, name)
		if err != nil {
			j.log.Warn("refresh failed", zap.String("product", name), zap.Error(err))
			continue
		}
		if res.Success {
			refreshed++
		}
		j.log.Info("refreshed product", zap.String("product", name), zap.Int("stored", storedCount(res)))
	}
	return refreshed
}

func storedCount(res *models.LiveScrapeResult) int {
	if res == nil {
		return 0
	}
	return len(res.StoredProducts)
}
