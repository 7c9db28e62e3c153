package models

import (
	"sort"
	"time"
)

// RawCandidate is a name/price pair found on a rendered page before any cleanup
type RawCandidate struct {
	RawText string  `json:"raw_text"`
	Price   float64 `json:"price"`
	Image   string  `json:"image,omitempty"`
}

// ScoredProduct is a normalized, relevancy-scored product from one platform
type ScoredProduct struct {
	Name           string   `json:"name"`
	Price          float64  `json:"price"`
	OriginalPrice  *float64 `json:"originalPrice"`
	URL            string   `json:"url"`
	Image          *string  `json:"image"`
	InStock        bool     `json:"inStock"`
	DeliveryFee    string   `json:"deliveryFee"`
	DeliveryTime   string   `json:"deliveryTime"`
	Category       string   `json:"category"`
	RelevancyScore int      `json:"relevancyScore"`
}

// PlatformResult is the outcome of scraping one platform for one query
type PlatformResult struct {
	Platform  string          `json:"platform"`
	Success   bool            `json:"success"`
	Products  []ScoredProduct `json:"products"`
	Error     *string         `json:"error"`
	ScrapedAt time.Time       `json:"scraped_at"`
}

// NewPlatformSuccess builds a successful result
func NewPlatformSuccess(platform string, products []ScoredProduct) PlatformResult {
	return PlatformResult{
		Platform:  platform,
		Success:   true,
		Products:  products,
		ScrapedAt: time.Now().UTC(),
	}
}

// NewPlatformFailure builds a failed result carrying the error message
func NewPlatformFailure(platform string, message string) PlatformResult {
	return PlatformResult{
		Platform:  platform,
		Success:   false,
		Products:  []ScoredProduct{},
		Error:     &message,
		ScrapedAt: time.Now().UTC(),
	}
}

// ErrorMessage returns the error text or an empty string
func (r PlatformResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// PricePoint is one platform's offer for a merged product
type PricePoint struct {
	ID            int64     `json:"id" db:"id"`
	Platform      string    `json:"platform" db:"platform"`
	Price         float64   `json:"price" db:"price"`
	OriginalPrice *float64  `json:"original_price" db:"original_price"`
	URL           string    `json:"url" db:"url"`
	InStock       bool      `json:"in_stock" db:"in_stock"`
	DeliveryFee   string    `json:"delivery_fee" db:"delivery_fee"`
	DeliveryTime  string    `json:"delivery_time" db:"delivery_time"`
	ScrapedAt     time.Time `json:"scraped_at" db:"scraped_at"`
}

// MergedProduct groups the offers for the same product across platforms
type MergedProduct struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	ImageURL  *string      `json:"image_url"`
	CreatedAt time.Time    `json:"created_at"`
	Prices    []PricePoint `json:"prices"`
}

// UpsertPrice sets the price point for its platform, replacing an existing one
func (p *MergedProduct) UpsertPrice(point PricePoint) {
	for i := range p.Prices {
		if p.Prices[i].Platform == point.Platform {
			p.Prices[i] = point
			return
		}
	}
	p.Prices = append(p.Prices, point)
}

// SortPrices orders the price points from cheapest to most expensive
func (p *MergedProduct) SortPrices() {
	sort.SliceStable(p.Prices, func(i, j int) bool {
		return p.Prices[i].Price < p.Prices[j].Price
	})
}

// LowestPrice returns the cheapest offer, or nil when there are none
func (p *MergedProduct) LowestPrice() *PricePoint {
	if len(p.Prices) == 0 {
		return nil
	}
	best := &p.Prices[0]
	for i := range p.Prices {
		if p.Prices[i].Price < best.Price {
			best = &p.Prices[i]
		}
	}
	return best
}

// ProductRecord is a row of the products table
type ProductRecord struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	ImageURL  *string   `db:"image_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PlatformCount is a per-platform row count
type PlatformCount struct {
	Platform string `json:"platform" db:"platform"`
	Count    int64  `json:"count" db:"count"`
}

// PlatformStats aggregates cached prices for one platform
type PlatformStats struct {
	Platform     string  `json:"platform" db:"platform"`
	TotalPrices  int64   `json:"total_prices" db:"total_prices"`
	AvgPrice     float64 `json:"avg_price" db:"avg_price"`
	MinPrice     float64 `json:"min_price" db:"min_price"`
	MaxPrice     float64 `json:"max_price" db:"max_price"`
	InStockCount int64   `json:"in_stock_count" db:"in_stock_count"`
}

// CacheStats summarizes the cache store
type CacheStats struct {
	TotalProducts    int64           `json:"total_products"`
	TotalPrices      int64           `json:"total_prices"`
	RecentScrapes24h []PlatformCount `json:"recent_scrapes_24h"`
	PlatformStats    []PlatformStats `json:"platform_stats"`
}

// StoredProduct reports one persisted scrape observation
type StoredProduct struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Platform string  `json:"platform"`
	Price    float64 `json:"price"`
}

// PlatformStatus describes a configured platform
type PlatformStatus struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
}
