package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pricecart/metrics"
	"pricecart/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPlatformTimeout = 60 * time.Second

// Aggregator fans a query out to every enabled platform and waits for all of them
type Aggregator struct {
	registry *Registry
	runners  map[string]Runner
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewAggregator creates an aggregator. runners must hold one Runner per registry key.
func NewAggregator(registry *Registry, runners map[string]Runner, m *metrics.Metrics, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		registry: registry,
		runners:  runners,
		metrics:  m,
		log:      log,
	}
}

// NewPipelineAggregator builds a Pipeline per registered platform on top of fetcher
func NewPipelineAggregator(registry *Registry, fetcher Fetcher, lexicon *Lexicon, m *metrics.Metrics, log *zap.Logger) *Aggregator {
	runners := make(map[string]Runner, len(registry.Keys()))
	for _, key := range registry.Keys() {
		p, _ := registry.Get(key)
		runners[key] = NewPipeline(p, fetcher, lexicon, log)
	}
	return NewAggregator(registry, runners, m, log)
}

// Registry returns the platform registry
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// ScrapeAll scrapes every enabled platform concurrently and returns one
// result per platform in registry order. Failures never abort siblings and
// the caller's cancellation does not stop in-flight scrapes; each platform
// is bounded by its own timeout instead.
func (a *Aggregator) ScrapeAll(ctx context.Context, query string) []models.PlatformResult {
	keys := a.registry.EnabledKeys()
	results := make([]models.PlatformResult, len(keys))
	detached := context.WithoutCancel(ctx)

	a.log.Info("scraping platforms", zap.String("query", query), zap.Strings("platforms", keys))

	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			results[i] = a.run(detached, key, query)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ScrapeOne scrapes a single platform. Unknown keys return ErrUnsupportedPlatform;
// a disabled platform yields a failed result.
func (a *Aggregator) ScrapeOne(ctx context.Context, platform, query string) (models.PlatformResult, error) {
	key := strings.ToLower(platform)
	if _, ok := a.registry.Get(key); !ok {
		return models.PlatformResult{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	if !a.registry.IsEnabled(key) {
		return models.NewPlatformFailure(key, ErrPlatformDisabled.Error()), nil
	}
	return a.run(context.WithoutCancel(ctx), key, query), nil
}

func (a *Aggregator) run(ctx context.Context, key, query string) (result models.PlatformResult) {
	start := time.Now()
	log := a.log.With(zap.String("platform", key), zap.String("query", query))

	defer func() {
		if r := recover(); r != nil {
			log.Error("platform scrape panicked", zap.Any("panic", r))
			result = models.NewPlatformFailure(key, fmt.Sprintf("scraper panic: %v", r))
		}
		a.metrics.ObserveScrape(key, result.Success, len(result.Products), time.Since(start))
	}()

	runner, ok := a.runners[key]
	if !ok {
		return models.NewPlatformFailure(key, fmt.Sprintf("no scraper registered for %s", key))
	}

	timeout := defaultPlatformTimeout
	if p, ok := a.registry.Get(key); ok && p.Timeout > 0 {
		timeout = p.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	products, err := runner.Run(ctx, query)
	if err != nil {
		log.Warn("platform scrape failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return models.NewPlatformFailure(key, err.Error())
	}
	if products == nil {
		products = []models.ScoredProduct{}
	}

	log.Info("platform scrape finished", zap.Int("products", len(products)), zap.Duration("duration", time.Since(start)))
	return models.NewPlatformSuccess(key, products)
}
