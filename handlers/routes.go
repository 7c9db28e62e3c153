package handlers

import (
	"net/http"

	"pricecart/metrics"
	"pricecart/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// RouterOptions configures the HTTP surface
type RouterOptions struct {
	AllowedOrigins     []string
	RateLimitPerSecond float64
	APIKeys            []string
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	Log                *zap.Logger
}

// NewRouter wires every route behind metrics, logging, rate limiting and CORS.
// Scrape endpoints that write to the cache store require an API key when keys are configured.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.Logging(opts.Log))
	r.Use(middleware.RateLimit(opts.RateLimitPerSecond))

	requireKey := middleware.APIKey(opts.APIKeys)
	write := func(fn http.HandlerFunc) http.Handler { return requireKey(fn) }

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	products := r.PathPrefix("/products").Subrouter()
	products.HandleFunc("/search", h.SearchProducts).Methods(http.MethodGet)
	products.HandleFunc("/popular", h.GetPopular).Methods(http.MethodGet)
	products.HandleFunc("/trending", h.GetTrending).Methods(http.MethodGet)
	products.HandleFunc("/suggestions", h.GetSuggestions).Methods(http.MethodGet)
	products.HandleFunc("/{id}/prices", h.GetProductPrices).Methods(http.MethodGet)
	products.HandleFunc("/{id}", h.GetProduct).Methods(http.MethodGet)

	scrape := r.PathPrefix("/scrape").Subrouter()
	scrape.Handle("/live/{productName}", write(h.ScrapeLive)).Methods(http.MethodPost)
	scrape.Handle("/platform/{platform}/{productName}", write(h.ScrapePlatform)).Methods(http.MethodPost)
	scrape.HandleFunc("/tasks", h.GetTaskStats).Methods(http.MethodGet)
	scrape.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods(http.MethodGet)
	scrape.HandleFunc("/stats", h.GetScrapeStats).Methods(http.MethodGet)
	scrape.HandleFunc("/platforms", h.GetPlatforms).Methods(http.MethodGet)
	scrape.Handle("/platforms/{platform}", write(h.UpdatePlatform)).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
