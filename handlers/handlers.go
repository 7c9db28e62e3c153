package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricecart/models"
	"pricecart/repository"
	"pricecart/scheduler"
	"pricecart/scraper"
	"pricecart/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 10
	maxLimit         = 100
)

// Searcher runs live searches
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*services.SearchResponse, error)
}

// ProductReader reads the cache store
type ProductReader interface {
	Popular(ctx context.Context, limit int) ([]models.MergedProduct, error)
	Trending(ctx context.Context, limit int) ([]models.MergedProduct, error)
	Suggestions(ctx context.Context, q string, limit int) ([]string, error)
	GetByID(ctx context.Context, id int64) (*models.MergedProduct, error)
	PricesFor(ctx context.Context, id int64) ([]models.PricePoint, error)
	Stats(ctx context.Context) (*models.CacheStats, error)
}

// Scrapes runs persisted scrapes and manages platforms
type Scrapes interface {
	Live(ctx context.Context, productName string) (*models.LiveScrapeResult, error)
	Platform(ctx context.Context, platform, productName string) (*services.PlatformScrape, error)
	Platforms() []models.PlatformStatus
	SupportedPlatforms() []string
	SetPlatformEnabled(platform string, enabled bool) (models.PlatformStatus, error)
}

// Tasks queues async live scrapes
type Tasks interface {
	Submit(query string) *models.ScrapeTask
	Get(taskID string) (*models.ScrapeTask, bool)
	Stats() scheduler.TaskStats
}

type Handlers struct {
	search   Searcher
	products ProductReader
	scrapes  Scrapes
	tasks    Tasks
	log      *zap.Logger
}

func NewHandlers(search Searcher, products ProductReader, scrapes Scrapes, tasks Tasks, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		search:   search,
		products: products,
		scrapes:  scrapes,
		tasks:    tasks,
		log:      log,
	}
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "pricecart",
		"platforms": h.scrapes.Platforms(),
	})
}

// SearchProducts scrapes every enabled platform and returns merged products
func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, []models.MergedProduct{})
		return
	}

	resp, err := h.search.Search(r.Context(), query, parseLimit(r, services.DefaultSearchLimit))
	if err != nil {
		h.log.Error("live search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to search products")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPopular returns recently cached products
func (h *Handlers) GetPopular(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.Popular(r.Context(), parseLimit(r, defaultListLimit))
	if err != nil {
		h.log.Error("failed to get popular products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get popular products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetTrending returns the newest cached products
func (h *Handlers) GetTrending(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.Trending(r.Context(), parseLimit(r, defaultListLimit))
	if err != nil {
		h.log.Error("failed to get trending products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get trending products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetSuggestions returns cached product names matching q
func (h *Handlers) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	names, err := h.products.Suggestions(r.Context(), r.URL.Query().Get("q"), parseLimit(r, defaultListLimit))
	if err != nil {
		h.log.Error("failed to get suggestions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get suggestions")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// GetProduct returns a cached product with its prices
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	product, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.productError(w, id, err, "Failed to get product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GetProductPrices returns a cached product's prices, cheapest first
func (h *Handlers) GetProductPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	prices, err := h.products.PricesFor(r.Context(), id)
	if err != nil {
		h.productError(w, id, err, "Failed to get product prices")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (h *Handlers) productError(w http.ResponseWriter, id int64, err error, message string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	h.log.Error(message, zap.Int64("product_id", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}

// ScrapeLive scrapes every enabled platform and stores the products found.
// With ?async=true the scrape is queued and a task id is returned.
func (h *Handlers) ScrapeLive(w http.ResponseWriter, r *http.Request) {
	productName := strings.TrimSpace(mux.Vars(r)["productName"])
	if productName == "" {
		writeError(w, http.StatusBadRequest, "Product name is required")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		task := h.tasks.Submit(productName)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"task_id": task.ID,
			"status":  task.CurrentStatus(),
			"message": "Live scrape queued for processing",
			"query":   productName,
		})
		return
	}

	result, err := h.scrapes.Live(r.Context(), productName)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "Product name is required")
			return
		}
		h.log.Error("live scrape failed", zap.String("query", productName), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to scrape live data",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ScrapePlatform scrapes a single platform
func (h *Handlers) ScrapePlatform(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := h.scrapes.Platform(r.Context(), vars["platform"], vars["productName"])
	if err != nil {
		switch {
		case errors.Is(err, scraper.ErrUnsupportedPlatform):
			h.unsupportedPlatform(w)
		case errors.Is(err, services.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "Product name is required")
		default:
			h.log.Error("platform scrape failed", zap.String("platform", vars["platform"]), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to scrape platform data",
				"details": err.Error(),
			})
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTaskStatus returns the status of an async task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, exists := h.tasks.Get(mux.Vars(r)["taskId"])
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task.View())
}

// GetTaskStats returns statistics about the task manager
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     h.tasks.Stats(),
		"timestamp": time.Now(),
	})
}

// GetScrapeStats summarizes the cache store
func (h *Handlers) GetScrapeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.products.Stats(r.Context())
	if err != nil {
		h.log.Error("failed to get scraping stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get scraping stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetPlatforms lists the platforms and whether they are enabled
func (h *Handlers) GetPlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scrapes.Platforms())
}

// UpdatePlatform enables or disables a platform
func (h *Handlers) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Request body must be {\"enabled\": true|false}")
		return
	}

	status, err := h.scrapes.SetPlatformEnabled(mux.Vars(r)["platform"], *req.Enabled)
	if err != nil {
		if errors.Is(err, scraper.ErrUnsupportedPlatform) {
			h.unsupportedPlatform(w)
			return
		}
		h.log.Error("failed to update platform", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update platform")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) unsupportedPlatform(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":               "Unsupported platform",
		"supported_platforms": h.scrapes.SupportedPlatforms(),
	})
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// parseLimit reads ?limit=, falling back to def for missing or invalid values
func parseLimit(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
