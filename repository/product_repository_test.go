package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"pricecart/database"
	"pricecart/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*ProductRepository, *sqlx.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateTables(ctx, db))
	return NewProductRepository(db), db
}

func strPtr(s string) *string { return &s }

func milk(prices ...models.PricePoint) models.MergedProduct {
	return models.MergedProduct{
		Name:     "Amul Taaza Toned Milk",
		Category: "Dairy",
		Prices:   prices,
	}
}

func TestSaveMergedProduct_UpsertsByNameAndPlatform(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.SaveMergedProduct(ctx, milk(
		models.PricePoint{Platform: "zepto", Price: 29, InStock: true},
		models.PricePoint{Platform: "blinkit", Price: 28, InStock: true},
	))
	require.NoError(t, err)

	// same name in a different case, one platform re-priced
	again := milk(models.PricePoint{Platform: "zepto", Price: 27, InStock: true})
	again.Name = "AMUL TAAZA TONED MILK"
	again.ImageURL = strPtr("https://cdn.example/milk.png")
	id2, err := repo.SaveMergedProduct(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	var products, prices int
	require.NoError(t, db.Get(&products, `SELECT COUNT(*) FROM products`))
	require.NoError(t, db.Get(&prices, `SELECT COUNT(*) FROM prices`))
	assert.Equal(t, 1, products)
	assert.Equal(t, 2, prices)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Amul Taaza Toned Milk", got.Name)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, "https://cdn.example/milk.png", *got.ImageURL)
	require.Len(t, got.Prices, 2)
	assert.Equal(t, "zepto", got.Prices[0].Platform)
	assert.Equal(t, 27.0, got.Prices[0].Price)
	assert.Equal(t, "blinkit", got.Prices[1].Platform)
}

func TestSaveMergedProduct_KeepsImageWhenNewIsNull(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	first := milk(models.PricePoint{Platform: "zepto", Price: 29, InStock: true})
	first.ImageURL = strPtr("https://cdn.example/a.png")
	id, err := repo.SaveMergedProduct(ctx, first)
	require.NoError(t, err)

	_, err = repo.SaveMergedProduct(ctx, milk(models.PricePoint{Platform: "zepto", Price: 30, InStock: true}))
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, "https://cdn.example/a.png", *got.ImageURL)
}

func TestSaveScraped(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	stored, err := repo.SaveScraped(ctx, "blinkit", models.ScoredProduct{
		Name:    "Amul Gold Milk",
		Price:   34,
		InStock: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, "blinkit", stored.Platform)

	got, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "General", got.Category)
	assert.Equal(t, strconv.FormatInt(stored.ID, 10), got.ID)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.PricesFor(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPricesFor_Ascending(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.SaveMergedProduct(ctx, milk(
		models.PricePoint{Platform: "swiggy", Price: 31, InStock: true},
		models.PricePoint{Platform: "zepto", Price: 26, InStock: false},
		models.PricePoint{Platform: "blinkit", Price: 28, InStock: true},
	))
	require.NoError(t, err)

	prices, err := repo.PricesFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, []float64{26, 28, 31}, []float64{prices[0].Price, prices[1].Price, prices[2].Price})
	assert.False(t, prices[0].InStock)
}

func TestPopular_FreshnessWindow(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	repo.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err := repo.SaveMergedProduct(ctx, models.MergedProduct{
		Name:   "Stale Bread",
		Prices: []models.PricePoint{{Platform: "zepto", Price: 40, InStock: true}},
	})
	require.NoError(t, err)

	repo.now = func() time.Time { return now }
	_, err = repo.SaveMergedProduct(ctx, milk(models.PricePoint{Platform: "zepto", Price: 29, InStock: true}))
	require.NoError(t, err)
	_, err = repo.SaveMergedProduct(ctx, models.MergedProduct{
		Name:   "Sold Out Paneer",
		Prices: []models.PricePoint{{Platform: "blinkit", Price: 90, InStock: false}},
	})
	require.NoError(t, err)

	popular, err := repo.Popular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, "Amul Taaza Toned Milk", popular[0].Name)

	trending, err := repo.Trending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "Amul Taaza Toned Milk", trending[0].Name)
	assert.Equal(t, "Stale Bread", trending[1].Name)
}

func TestPopular_EmptyCache(t *testing.T) {
	repo, _ := newTestRepo(t)

	popular, err := repo.Popular(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, popular)
	assert.Empty(t, popular)
}

func TestSuggestions(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"Amul Gold Milk", "Amul Butter", "Heritage Curd"} {
		_, err := repo.SaveScraped(ctx, "zepto", models.ScoredProduct{Name: name, Price: 50, InStock: true})
		require.NoError(t, err)
	}

	got, err := repo.Suggestions(ctx, "AMUL", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amul Butter", "Amul Gold Milk"}, got)

	got, err = repo.Suggestions(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.Suggestions(ctx, "a", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPopularNames(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.SaveMergedProduct(ctx, models.MergedProduct{
		Name:   "Bread",
		Prices: []models.PricePoint{{Platform: "zepto", Price: 40, InStock: true}},
	})
	require.NoError(t, err)
	_, err = repo.SaveMergedProduct(ctx, milk(
		models.PricePoint{Platform: "zepto", Price: 29, InStock: true},
		models.PricePoint{Platform: "blinkit", Price: 28, InStock: true},
	))
	require.NoError(t, err)

	names, err := repo.PopularNames(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amul Taaza Toned Milk", "Bread"}, names)
}

func TestStats(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.SaveMergedProduct(ctx, milk(
		models.PricePoint{Platform: "zepto", Price: 30, InStock: true},
		models.PricePoint{Platform: "blinkit", Price: 28, InStock: false},
	))
	require.NoError(t, err)
	_, err = repo.SaveScraped(ctx, "zepto", models.ScoredProduct{Name: "Bread", Price: 40, InStock: true})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalProducts)
	assert.Equal(t, int64(3), stats.TotalPrices)
	assert.Equal(t, []models.PlatformCount{
		{Platform: "blinkit", Count: 1},
		{Platform: "zepto", Count: 2},
	}, stats.RecentScrapes24h)

	require.Len(t, stats.PlatformStats, 2)
	zepto := stats.PlatformStats[1]
	assert.Equal(t, "zepto", zepto.Platform)
	assert.Equal(t, int64(2), zepto.TotalPrices)
	assert.InDelta(t, 35.0, zepto.AvgPrice, 0.001)
	assert.Equal(t, 30.0, zepto.MinPrice)
	assert.Equal(t, 40.0, zepto.MaxPrice)
	assert.Equal(t, int64(2), zepto.InStockCount)
	assert.Equal(t, int64(0), stats.PlatformStats[0].InStockCount)
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "amul milk", NameKey("  Amul Milk "))
}
