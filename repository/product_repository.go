package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pricecart/models"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a product id does not exist
var ErrNotFound = errors.New("product not found")

// freshness window for popular products and recent scrape counts
const freshWindow = 24 * time.Hour

// ProductRepository handles the products and prices cache tables
type ProductRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{
		db:  db,
		now: time.Now,
	}
}

// NameKey is the case-insensitive uniqueness key of a product name
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type priceRow struct {
	ProductID int64 `db:"product_id"`
	models.PricePoint
}

const (
	upsertProductSQL = `
		INSERT INTO products (name, name_key, category, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_key) DO UPDATE SET
			image_url = COALESCE(excluded.image_url, products.image_url),
			updated_at = excluded.updated_at
		RETURNING id`

	upsertPriceSQL = `
		INSERT INTO prices (product_id, platform, price, original_price, url, in_stock, delivery_fee, delivery_time, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, platform) DO UPDATE SET
			price = excluded.price,
			original_price = excluded.original_price,
			url = excluded.url,
			in_stock = excluded.in_stock,
			delivery_fee = excluded.delivery_fee,
			delivery_time = excluded.delivery_time,
			scraped_at = excluded.scraped_at
		RETURNING id`

	priceColumns = `id, product_id, platform, price, original_price, url, in_stock, delivery_fee, delivery_time, scraped_at`
)

// SaveMergedProduct upserts a merged product and all its price points in one
// transaction and returns the product row id
func (r *ProductRepository) SaveMergedProduct(ctx context.Context, p models.MergedProduct) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC()
	productID, err := upsertProduct(ctx, tx, p.Name, p.Category, p.ImageURL, now)
	if err != nil {
		return 0, err
	}

	for _, price := range p.Prices {
		if _, err := upsertPrice(ctx, tx, productID, price, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit product %q: %w", p.Name, err)
	}
	return productID, nil
}

// SaveScraped upserts a single scraped product observation for a platform
func (r *ProductRepository) SaveScraped(ctx context.Context, platform string, product models.ScoredProduct) (models.StoredProduct, error) {
	merged := models.MergedProduct{
		Name:     product.Name,
		Category: product.Category,
		ImageURL: product.Image,
		Prices: []models.PricePoint{{
			Platform:      platform,
			Price:         product.Price,
			OriginalPrice: product.OriginalPrice,
			URL:           product.URL,
			InStock:       product.InStock,
			DeliveryFee:   product.DeliveryFee,
			DeliveryTime:  product.DeliveryTime,
		}},
	}

	id, err := r.SaveMergedProduct(ctx, merged)
	if err != nil {
		return models.StoredProduct{}, err
	}
	return models.StoredProduct{
		ID:       id,
		Name:     product.Name,
		Platform: platform,
		Price:    product.Price,
	}, nil
}

func upsertProduct(ctx context.Context, tx *sqlx.Tx, name, category string, image *string, now time.Time) (int64, error) {
	if category == "" {
		category = "General"
	}
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(upsertProductSQL),
		strings.TrimSpace(name), NameKey(name), category, image, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product %q: %w", name, err)
	}
	return id, nil
}

func upsertPrice(ctx context.Context, tx *sqlx.Tx, productID int64, p models.PricePoint, now time.Time) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(upsertPriceSQL),
		productID, p.Platform, p.Price, p.OriginalPrice, p.URL, p.InStock, p.DeliveryFee, p.DeliveryTime, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s price for product %d: %w", p.Platform, productID, err)
	}
	return id, nil
}

// Popular returns products refreshed in the last 24 hours that have at least
// one in-stock price scraped in the same window
func (r *ProductRepository) Popular(ctx context.Context, limit int) ([]models.MergedProduct, error) {
	since := r.now().UTC().Add(-freshWindow)
	query := `
		SELECT p.id, p.name, p.category, p.image_url, p.created_at, p.updated_at
		FROM products p
		JOIN prices pr ON p.id = pr.product_id
			AND pr.in_stock = ?
			AND pr.scraped_at > ?
		WHERE p.updated_at > ?
		GROUP BY p.id, p.name, p.category, p.image_url, p.created_at, p.updated_at
		HAVING COUNT(pr.id) > 0
		ORDER BY p.updated_at DESC, COUNT(pr.id) DESC
		LIMIT ?`

	var records []models.ProductRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), true, since, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return r.withPrices(ctx, records, &since)
}

// Trending returns the newest products that have any in-stock price
func (r *ProductRepository) Trending(ctx context.Context, limit int) ([]models.MergedProduct, error) {
	query := `
		SELECT p.id, p.name, p.category, p.image_url, p.created_at, p.updated_at
		FROM products p
		JOIN prices pr ON p.id = pr.product_id AND pr.in_stock = ?
		GROUP BY p.id, p.name, p.category, p.image_url, p.created_at, p.updated_at
		HAVING COUNT(pr.id) > 0
		ORDER BY p.created_at DESC, COUNT(pr.id) DESC
		LIMIT ?`

	var records []models.ProductRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), true, limit); err != nil {
		return nil, fmt.Errorf("failed to list trending products: %w", err)
	}
	return r.withPrices(ctx, records, nil)
}

// Suggestions returns distinct product names containing q, alphabetically
func (r *ProductRepository) Suggestions(ctx context.Context, q string, limit int) ([]string, error) {
	q = strings.TrimSpace(q)
	names := []string{}
	if q == "" {
		return names, nil
	}

	query := `SELECT DISTINCT name FROM products WHERE name_key LIKE ? ORDER BY name LIMIT ?`
	if err := r.db.SelectContext(ctx, &names, r.db.Rebind(query), "%"+strings.ToLower(q)+"%", limit); err != nil {
		return nil, fmt.Errorf("failed to get suggestions: %w", err)
	}
	return names, nil
}

// GetByID returns a product with all its prices, cheapest first
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.MergedProduct, error) {
	var record models.ProductRecord
	query := `SELECT id, name, category, image_url, created_at, updated_at FROM products WHERE id = ?`
	if err := r.db.GetContext(ctx, &record, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}

	products, err := r.withPrices(ctx, []models.ProductRecord{record}, nil)
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

// PricesFor returns the prices of a product, cheapest first
func (r *ProductRepository) PricesFor(ctx context.Context, id int64) ([]models.PricePoint, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT 1 FROM products WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}

	var rows []priceRow
	query := `SELECT ` + priceColumns + ` FROM prices WHERE product_id = ? ORDER BY price ASC, platform ASC`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), id); err != nil {
		return nil, fmt.Errorf("failed to get prices for product %d: %w", id, err)
	}

	prices := make([]models.PricePoint, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, row.PricePoint)
	}
	return prices, nil
}

// PopularNames returns the names of the products with the most platform prices,
// most recently refreshed first
func (r *ProductRepository) PopularNames(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT p.name
		FROM products p
		JOIN prices pr ON p.id = pr.product_id
		GROUP BY p.id, p.name, p.updated_at
		ORDER BY COUNT(pr.id) DESC, p.updated_at DESC
		LIMIT ?`

	names := []string{}
	if err := r.db.SelectContext(ctx, &names, r.db.Rebind(query), limit); err != nil {
		return nil, fmt.Errorf("failed to list popular names: %w", err)
	}
	return names, nil
}

// Stats summarizes the cache contents
func (r *ProductRepository) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{
		RecentScrapes24h: []models.PlatformCount{},
		PlatformStats:    []models.PlatformStats{},
	}

	if err := r.db.GetContext(ctx, &stats.TotalProducts, `SELECT COUNT(*) FROM products`); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if err := r.db.GetContext(ctx, &stats.TotalPrices, `SELECT COUNT(*) FROM prices`); err != nil {
		return nil, fmt.Errorf("failed to count prices: %w", err)
	}

	since := r.now().UTC().Add(-freshWindow)
	recent := `
		SELECT platform, COUNT(*) AS count
		FROM prices
		WHERE scraped_at > ?
		GROUP BY platform
		ORDER BY platform`
	if err := r.db.SelectContext(ctx, &stats.RecentScrapes24h, r.db.Rebind(recent), since); err != nil {
		return nil, fmt.Errorf("failed to count recent scrapes: %w", err)
	}

	perPlatform := `
		SELECT
			platform,
			COUNT(*) AS total_prices,
			AVG(price) AS avg_price,
			MIN(price) AS min_price,
			MAX(price) AS max_price,
			COUNT(CASE WHEN in_stock THEN 1 END) AS in_stock_count
		FROM prices
		GROUP BY platform
		ORDER BY platform`
	if err := r.db.SelectContext(ctx, &stats.PlatformStats, perPlatform); err != nil {
		return nil, fmt.Errorf("failed to aggregate platform stats: %w", err)
	}

	return stats, nil
}

// withPrices loads the prices for records in one query and attaches them,
// cheapest first. A non-nil since restricts prices to that freshness window.
func (r *ProductRepository) withPrices(ctx context.Context, records []models.ProductRecord, since *time.Time) ([]models.MergedProduct, error) {
	products := make([]models.MergedProduct, 0, len(records))
	if len(records) == 0 {
		return products, nil
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	base := `SELECT ` + priceColumns + ` FROM prices WHERE product_id IN (?)`
	args := []any{ids}
	if since != nil {
		base += ` AND scraped_at > ?`
		args = append(args, *since)
	}
	base += ` ORDER BY price ASC, platform ASC`

	query, inArgs, err := sqlx.In(base, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build price query: %w", err)
	}

	var rows []priceRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), inArgs...); err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	byProduct := make(map[int64][]models.PricePoint, len(records))
	for _, row := range rows {
		byProduct[row.ProductID] = append(byProduct[row.ProductID], row.PricePoint)
	}

	for _, rec := range records {
		prices := byProduct[rec.ID]
		if prices == nil {
			prices = []models.PricePoint{}
		}
		products = append(products, models.MergedProduct{
			ID:        strconv.FormatInt(rec.ID, 10),
			Name:      rec.Name,
			Category:  rec.Category,
			ImageURL:  rec.ImageURL,
			CreatedAt: rec.CreatedAt,
			Prices:    prices,
		})
	}
	return products, nil
}
