package services

import (
	"context"
	"strings"
	"time"

	"pricecart/cache"
	"pricecart/metrics"
	"pricecart/models"

	"go.uber.org/zap"
)

// DefaultSearchLimit is used when the caller gives no usable limit
const DefaultSearchLimit = 20

// Scraper runs platform scrapes
type Scraper interface {
	ScrapeAll(ctx context.Context, query string) []models.PlatformResult
	ScrapeOne(ctx context.Context, platform, query string) (models.PlatformResult, error)
}

// ProductStore persists scraped products
type ProductStore interface {
	SaveMergedProduct(ctx context.Context, p models.MergedProduct) (int64, error)
	SaveScraped(ctx context.Context, platform string, product models.ScoredProduct) (models.StoredProduct, error)
}

// PlatformDebug summarizes one platform's outcome for a search
type PlatformDebug struct {
	Platform     string  `json:"platform"`
	Success      bool    `json:"success"`
	ProductCount int     `json:"product_count"`
	Error        *string `json:"error"`
}

// SearchDebug describes how a search response was assembled
type SearchDebug struct {
	TotalPlatforms      int             `json:"total_platforms"`
	PlatformResults     []PlatformDebug `json:"platform_results"`
	UniqueProductsFound int             `json:"unique_products_found"`
	ReturnedProducts    int             `json:"returned_products"`
}

// SearchResponse is the live search result
type SearchResponse struct {
	Products []models.MergedProduct `json:"products"`
	Debug    SearchDebug            `json:"debug"`
}

// SearchService runs a live search across platforms and merges the results
type SearchService struct {
	scraper Scraper
	merger  *Merger
	store   ProductStore
	cache   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewSearchService creates a search service. store and responses may be nil;
// a zero ttl disables the response cache.
func NewSearchService(scraper Scraper, merger *Merger, store ProductStore, responses cache.Store, ttl time.Duration, m *metrics.Metrics, log *zap.Logger) *SearchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchService{
		scraper: scraper,
		merger:  merger,
		store:   store,
		cache:   responses,
		ttl:     ttl,
		metrics: m,
		log:     log,
	}
}

// Search scrapes every enabled platform for query, merges the products and
// returns at most limit of them. Writing to the cache store is best effort.
func (s *SearchService) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if query == "" {
		return &SearchResponse{Products: []models.MergedProduct{}, Debug: SearchDebug{PlatformResults: []PlatformDebug{}}}, nil
	}

	key := cache.SearchKey(query, limit)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	start := time.Now()
	results := s.scraper.ScrapeAll(ctx, query)
	merged := s.merger.Merge(results)

	returned := merged
	if len(returned) > limit {
		returned = returned[:limit]
	}
	for i := range returned {
		returned[i].SortPrices()
	}

	s.persist(context.WithoutCancel(ctx), returned)

	resp := &SearchResponse{
		Products: returned,
		Debug: SearchDebug{
			TotalPlatforms:      len(results),
			PlatformResults:     debugResults(results),
			UniqueProductsFound: len(merged),
			ReturnedProducts:    len(returned),
		},
	}

	s.log.Info("live search completed",
		zap.String("query", query),
		zap.Int("platforms", len(results)),
		zap.Int("unique_products", len(merged)),
		zap.Int("returned", len(returned)),
		zap.Duration("duration", time.Since(start)),
	)

	s.remember(ctx, key, resp)
	return resp, nil
}

func (s *SearchService) cached(ctx context.Context, key string) (*SearchResponse, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	var resp SearchResponse
	ok, err := cache.GetJSON(ctx, s.cache, key, &resp)
	if err != nil {
		s.log.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.SearchCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return &resp, true
}

func (s *SearchService) remember(ctx context.Context, key string, resp *SearchResponse) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, resp, s.ttl); err != nil {
		s.log.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *SearchService) persist(ctx context.Context, products []models.MergedProduct) {
	if s.store == nil {
		return
	}
	for _, p := range products {
		_, err := s.store.SaveMergedProduct(ctx, p)
		s.metrics.CacheWrite(err == nil)
		if err != nil {
			s.log.Error("caching scraped product failed", zap.String("product", p.Name), zap.Error(err))
		}
	}
}

func debugResults(results []models.PlatformResult) []PlatformDebug {
	out := make([]PlatformDebug, 0, len(results))
	for _, r := range results {
		d := PlatformDebug{
			Platform: r.Platform,
			Success:  r.Success,
			Error:    r.Error,
		}
		if r.Success {
			d.ProductCount = len(r.Products)
		}
		out = append(out, d)
	}
	return out
}
