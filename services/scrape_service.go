package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pricecart/metrics"
	"pricecart/models"
	"pricecart/scraper"

	"go.uber.org/zap"
)

// ErrEmptyQuery is returned when a scrape is requested without a product name
var ErrEmptyQuery = errors.New("product name is required")

// PlatformScrape is the outcome of a single-platform scrape
type PlatformScrape struct {
	Platform       string                 `json:"platform"`
	ProductName    string                 `json:"product_name"`
	Result         models.PlatformResult  `json:"result"`
	StoredProducts []models.StoredProduct `json:"stored_products,omitempty"`
}

// ScrapeService runs scrapes that persist every product they find
type ScrapeService struct {
	scraper  Scraper
	store    ProductStore
	registry *scraper.Registry
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewScrapeService creates a scrape service
func NewScrapeService(s Scraper, store ProductStore, registry *scraper.Registry, m *metrics.Metrics, log *zap.Logger) *ScrapeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScrapeService{
		scraper:  s,
		store:    store,
		registry: registry,
		metrics:  m,
		log:      log,
	}
}

// Live scrapes every enabled platform and stores each product found.
// A product that fails to store is logged and skipped.
func (s *ScrapeService) Live(ctx context.Context, productName string) (*models.LiveScrapeResult, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, ErrEmptyQuery
	}

	s.log.Info("starting live scrape", zap.String("query", productName))
	results := s.scraper.ScrapeAll(ctx, productName)

	if !anyProducts(results) {
		return &models.LiveScrapeResult{
			Success:         false,
			Message:         "No products found on any platform",
			ScrapingResults: results,
		}, nil
	}

	stored := s.persist(context.WithoutCancel(ctx), results)
	return &models.LiveScrapeResult{
		Success:         true,
		Message:         fmt.Sprintf("Successfully scraped and stored %d products", len(stored)),
		StoredProducts:  stored,
		ScrapingResults: results,
	}, nil
}

// Platform scrapes one platform and stores what it finds. Unknown platforms
// return scraper.ErrUnsupportedPlatform.
func (s *ScrapeService) Platform(ctx context.Context, platform, productName string) (*PlatformScrape, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, ErrEmptyQuery
	}

	result, err := s.scraper.ScrapeOne(ctx, platform, productName)
	if err != nil {
		return nil, err
	}

	return &PlatformScrape{
		Platform:       result.Platform,
		ProductName:    productName,
		Result:         result,
		StoredProducts: s.persist(context.WithoutCancel(ctx), []models.PlatformResult{result}),
	}, nil
}

// Platforms lists the configured platforms
func (s *ScrapeService) Platforms() []models.PlatformStatus {
	return s.registry.Status()
}

// SupportedPlatforms lists every platform key, enabled or not
func (s *ScrapeService) SupportedPlatforms() []string {
	return s.registry.Keys()
}

// SetPlatformEnabled switches a platform on or off at runtime
func (s *ScrapeService) SetPlatformEnabled(platform string, enabled bool) (models.PlatformStatus, error) {
	key := strings.ToLower(platform)
	if err := s.registry.SetEnabled(key, enabled); err != nil {
		return models.PlatformStatus{}, err
	}
	s.log.Info("platform toggled", zap.String("platform", key), zap.Bool("enabled", enabled))

	for _, st := range s.registry.Status() {
		if st.Platform == key {
			return st, nil
		}
	}
	return models.PlatformStatus{}, fmt.Errorf("%w: %s", scraper.ErrUnsupportedPlatform, platform)
}

func (s *ScrapeService) persist(ctx context.Context, results []models.PlatformResult) []models.StoredProduct {
	stored := []models.StoredProduct{}
	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, product := range result.Products {
			sp, err := s.store.SaveScraped(ctx, result.Platform, product)
			s.metrics.CacheWrite(err == nil)
			if err != nil {
				s.log.Error("storing scraped product failed",
					zap.String("platform", result.Platform),
					zap.String("product", product.Name),
					zap.Error(err),
				)
				continue
			}
			stored = append(stored, sp)
		}
	}
	return stored
}

func anyProducts(results []models.PlatformResult) bool {
	for _, r := range results {
		if r.Success && len(r.Products) > 0 {
			return true
		}
	}
	return false
}
