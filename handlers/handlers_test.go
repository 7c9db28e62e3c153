package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pricecart/metrics"
	"pricecart/models"
	"pricecart/repository"
	"pricecart/scheduler"
	"pricecart/scraper"
	"pricecart/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	query string
	limit int
	err   error
}

func (f *fakeSearch) Search(_ context.Context, q string, limit int) (*services.SearchResponse, error) {
	f.query, f.limit = q, limit
	if f.err != nil {
		return nil, f.err
	}
	return &services.SearchResponse{
		Products: []models.MergedProduct{{ID: "p1", Name: "Amul Milk", Prices: []models.PricePoint{{Platform: "zepto", Price: 29}}}},
		Debug:    services.SearchDebug{TotalPlatforms: 2, UniqueProductsFound: 1, ReturnedProducts: 1},
	}, nil
}

type fakeProducts struct {
	limit int
	err   error
}

func (f *fakeProducts) Popular(_ context.Context, limit int) ([]models.MergedProduct, error) {
	f.limit = limit
	return []models.MergedProduct{}, f.err
}

func (f *fakeProducts) Trending(_ context.Context, limit int) ([]models.MergedProduct, error) {
	f.limit = limit
	return []models.MergedProduct{{ID: "3", Name: "Bread"}}, f.err
}

func (f *fakeProducts) Suggestions(_ context.Context, q string, limit int) ([]string, error) {
	return []string{"Amul Butter", "Amul Milk"}, f.err
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*models.MergedProduct, error) {
	if id != 7 {
		return nil, repository.ErrNotFound
	}
	return &models.MergedProduct{ID: "7", Name: "Amul Milk"}, nil
}

func (f *fakeProducts) PricesFor(_ context.Context, id int64) ([]models.PricePoint, error) {
	if id != 7 {
		return nil, repository.ErrNotFound
	}
	return []models.PricePoint{{Platform: "blinkit", Price: 27}, {Platform: "zepto", Price: 29}}, nil
}

func (f *fakeProducts) Stats(context.Context) (*models.CacheStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CacheStats{TotalProducts: 4, TotalPrices: 6}, nil
}

type fakeScrapes struct {
	registry *scraper.Registry
}

func (f *fakeScrapes) Live(_ context.Context, name string) (*models.LiveScrapeResult, error) {
	if name == "explode" {
		return nil, errors.New("browser crashed")
	}
	return &models.LiveScrapeResult{Success: true, Message: "Successfully scraped and stored 1 products"}, nil
}

func (f *fakeScrapes) Platform(_ context.Context, platform, name string) (*services.PlatformScrape, error) {
	if _, ok := f.registry.Get(platform); !ok {
		return nil, scraper.ErrUnsupportedPlatform
	}
	return &services.PlatformScrape{Platform: platform, ProductName: name, Result: models.NewPlatformFailure(platform, "no products found")}, nil
}

func (f *fakeScrapes) Platforms() []models.PlatformStatus { return f.registry.Status() }
func (f *fakeScrapes) SupportedPlatforms() []string        { return f.registry.Keys() }

func (f *fakeScrapes) SetPlatformEnabled(platform string, enabled bool) (models.PlatformStatus, error) {
	if err := f.registry.SetEnabled(platform, enabled); err != nil {
		return models.PlatformStatus{}, err
	}
	return models.PlatformStatus{Platform: platform, Enabled: enabled}, nil
}

type fakeTasks struct {
	tasks map[string]*models.ScrapeTask
}

func (f *fakeTasks) Submit(q string) *models.ScrapeTask {
	t := models.NewScrapeTask(q)
	f.tasks[t.ID] = t
	return t
}

func (f *fakeTasks) Get(id string) (*models.ScrapeTask, bool) {
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeTasks) Stats() scheduler.TaskStats {
	return scheduler.TaskStats{TotalTasks: len(f.tasks), MaxWorkers: 2}
}

type fixture struct {
	search   *fakeSearch
	products *fakeProducts
	tasks    *fakeTasks
	router   http.Handler
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		search:   &fakeSearch{},
		products: &fakeProducts{},
		tasks:    &fakeTasks{tasks: map[string]*models.ScrapeTask{}},
	}
	scrapes := &fakeScrapes{registry: scraper.NewRegistry(scraper.DefaultPlatforms(), nil)}
	h := NewHandlers(f.search, f.products, scrapes, f.tasks, nil)

	reg := prometheus.NewRegistry()
	f.router = NewRouter(h, RouterOptions{
		AllowedOrigins: []string{"*"},
		APIKeys:        apiKeys,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
	})
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Len(t, body["platforms"], 3)
}

func TestSearch_EmptyQueryReturnsEmptyList(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/products/search?q=%20", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Empty(t, f.search.query)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/products/search?q=milk&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "milk", f.search.query)
	assert.Equal(t, 5, f.search.limit)

	body := decode[services.SearchResponse](t, w)
	require.Len(t, body.Products, 1)
	assert.Equal(t, 2, body.Debug.TotalPlatforms)
	assert.Equal(t, 1, body.Debug.ReturnedProducts)
}

func TestSearch_DefaultLimitAndError(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/products/search?q=milk&limit=abc", "")
	assert.Equal(t, services.DefaultSearchLimit, f.search.limit)

	f.search.err = errors.New("boom")
	w := f.do(http.MethodGet, "/products/search?q=milk", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPopularAndTrending(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/products/popular", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, defaultListLimit, f.products.limit)

	w = f.do(http.MethodGet, "/products/trending?limit=500", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxLimit, f.products.limit)
	assert.Len(t, decode[[]models.MergedProduct](t, w), 1)
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/products/suggestions?q=amul", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Amul Butter", "Amul Milk"}, decode[[]string](t, w))
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/products/7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Amul Milk", decode[models.MergedProduct](t, w).Name)

	for _, target := range []string{"/products/8", "/products/abc", "/products/8/prices"} {
		w = f.do(http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.JSONEq(t, `{"error":"Product not found"}`, w.Body.String())
	}

	w = f.do(http.MethodGet, "/products/7/prices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	prices := decode[[]models.PricePoint](t, w)
	require.Len(t, prices, 2)
	assert.Equal(t, "blinkit", prices[0].Platform)
}

func TestScrapeLive(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/scrape/live/milk", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.LiveScrapeResult](t, w).Success)

	w = f.do(http.MethodPost, "/scrape/live/explode", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "browser crashed", decode[map[string]string](t, w)["details"])
}

func TestScrapeLive_AsyncAndTaskStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/scrape/live/milk?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "queued", body["status"])
	taskID := body["task_id"]
	require.NotEmpty(t, taskID)

	w = f.do(http.MethodGet, "/scrape/tasks/"+taskID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	view := decode[models.TaskView](t, w)
	assert.Equal(t, "milk", view.Query)

	w = f.do(http.MethodGet, "/scrape/tasks/task_nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/scrape/tasks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_tasks":1`)
}

func TestScrapePlatform(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/scrape/platform/zepto/milk", "")
	assert.Equal(t, http.StatusOK, w.Code)
	res := decode[services.PlatformScrape](t, w)
	assert.Equal(t, "zepto", res.Platform)
	assert.Equal(t, "milk", res.ProductName)
	assert.False(t, res.Result.Success)

	w = f.do(http.MethodPost, "/scrape/platform/bigbasket/milk", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "Unsupported platform", body["error"])
	assert.Equal(t, []any{"zepto", "blinkit", "swiggy"}, body["supported_platforms"])
}

func TestScrapeStats(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/scrape/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4), decode[models.CacheStats](t, w).TotalProducts)

	f.products.err = errors.New("db down")
	w = f.do(http.MethodGet, "/scrape/stats", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPlatforms(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/scrape/platforms/swiggy", `{"enabled": true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/scrape/platforms", "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, st := range decode[[]models.PlatformStatus](t, w) {
		assert.True(t, st.Enabled, st.Platform)
	}

	w = f.do(http.MethodPut, "/scrape/platforms/swiggy", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/scrape/platforms/bigbasket", `{"enabled": false}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteEndpointsRequireKey(t *testing.T) {
	f := newFixture(t, "secret-key")

	w := f.do(http.MethodPost, "/scrape/live/milk", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/scrape/live/milk?api_key=secret-key", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// reads stay open
	w = f.do(http.MethodGet, "/products/popular", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/products/popular", "")

	w := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/products/popular"`)
}
