package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveScrape(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveScrape("zepto", true, 2, 3*time.Second)
	m.ObserveScrape("zepto", false, 0, time.Second)
	m.ObserveScrape("blinkit", true, 1, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues("zepto", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapesTotal.WithLabelValues("zepto", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProductsFound.WithLabelValues("zepto")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveScrape("zepto", true, 1, time.Second)
		m.BrowserLaunched("zepto")
		m.BrowserEvicted("zepto", "max_age")
		m.SetActiveBrowsers(3)
		m.CacheWrite(false)
		m.SearchCacheLookup(true)
		m.TaskFinished("completed")
		m.ObserveRequest("/health", "GET", 200, time.Millisecond)
	})
}

func TestPoolAndCacheCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BrowserLaunched("blinkit")
	m.BrowserEvicted("blinkit", "max_age")
	m.SetActiveBrowsers(2)
	m.CacheWrite(true)
	m.SearchCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowsersLaunched.WithLabelValues("blinkit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrowsersEvicted.WithLabelValues("blinkit", "max_age")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrowsersActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheWrites.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchCache.WithLabelValues("miss")))
}
