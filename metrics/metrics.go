package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricecart"

// Metrics holds the Prometheus collectors for scraping, the browser pool,
// the cache store and the HTTP surface. A nil *Metrics records nothing.
type Metrics struct {
	ScrapesTotal   *prometheus.CounterVec
	ScrapeDuration *prometheus.HistogramVec
	ProductsFound  *prometheus.CounterVec

	BrowsersLaunched *prometheus.CounterVec
	BrowsersEvicted  *prometheus.CounterVec
	BrowsersActive   prometheus.Gauge

	CacheWrites  *prometheus.CounterVec
	SearchCache  *prometheus.CounterVec
	TasksTotal   *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "scrapes_total",
			Help:      "Platform scrapes by outcome",
		}, []string{"platform", "outcome"}),
		ScrapeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "scrape_duration_seconds",
			Help:      "Time spent scraping one platform",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"platform"}),
		ProductsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scraper",
			Name:      "products_found_total",
			Help:      "Scored products returned per platform",
		}, []string{"platform"}),
		BrowsersLaunched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "browsers_launched_total",
			Help:      "Browsers launched per pool key",
		}, []string{"key"}),
		BrowsersEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "browsers_evicted_total",
			Help:      "Browsers closed by the pool, by reason",
		}, []string{"key", "reason"}),
		BrowsersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "browsers_active",
			Help:      "Browsers currently held by the pool",
		}),
		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Best-effort cache store writes by outcome",
		}, []string{"outcome"}),
		SearchCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search_cache",
			Name:      "lookups_total",
			Help:      "Search response cache lookups by result",
		}, []string{"result"}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Async scrape tasks by final status",
		}, []string{"status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveScrape records one finished platform scrape
func (m *Metrics) ObserveScrape(platform string, success bool, products int, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(platform, outcome(success)).Inc()
	m.ScrapeDuration.WithLabelValues(platform).Observe(d.Seconds())
	m.ProductsFound.WithLabelValues(platform).Add(float64(products))
}

// BrowserLaunched records a browser launch for key
func (m *Metrics) BrowserLaunched(key string) {
	if m == nil {
		return
	}
	m.BrowsersLaunched.WithLabelValues(key).Inc()
}

// BrowserEvicted records a browser closed by the pool
func (m *Metrics) BrowserEvicted(key, reason string) {
	if m == nil {
		return
	}
	m.BrowsersEvicted.WithLabelValues(key, reason).Inc()
}

// SetActiveBrowsers sets the pooled browser gauge
func (m *Metrics) SetActiveBrowsers(n int) {
	if m == nil {
		return
	}
	m.BrowsersActive.Set(float64(n))
}

// CacheWrite records a cache store write
func (m *Metrics) CacheWrite(success bool) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(outcome(success)).Inc()
}

// SearchCacheLookup records a hit or miss on the search response cache
func (m *Metrics) SearchCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SearchCache.WithLabelValues(result).Inc()
}

// TaskFinished records an async task reaching a final status
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(status).Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
