package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricecart/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrPoolClosed is returned by Acquire after Shutdown
var ErrPoolClosed = errors.New("browser pool is shut down")

// Browser is a pooled browser process
type Browser interface {
	Ping(ctx context.Context) error
	Close() error
}

// LaunchFunc starts a new browser
type LaunchFunc func(ctx context.Context) (Browser, error)

// PoolOptions configures eviction
type PoolOptions struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	PingTimeout time.Duration
}

// DefaultPoolOptions evicts browsers after ten minutes of life or five idle
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxAge:      10 * time.Minute,
		IdleTimeout: 5 * time.Minute,
		PingTimeout: 5 * time.Second,
	}
}

type poolEntry struct {
	key       string
	browser   Browser
	createdAt time.Time
	lastUsed  time.Time
	inUse     int
}

// Handle is a leased browser. Return it with Release, or Discard if it broke.
type Handle struct {
	pool  *BrowserPool
	entry *poolEntry
	once  sync.Once
}

// Browser returns the leased browser
func (h *Handle) Browser() Browser {
	return h.entry.browser
}

// Key returns the pool key the browser belongs to
func (h *Handle) Key() string {
	return h.entry.key
}

// PoolStat describes one pooled browser
type PoolStat struct {
	Key         string  `json:"key"`
	AgeSeconds  float64 `json:"age_seconds"`
	IdleSeconds float64 `json:"idle_seconds"`
	InUse       int     `json:"in_use"`
}

// BrowserPool keeps one warm browser per key and hands out leases on it.
// Each lease is expected to open its own page.
type BrowserPool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool

	launch  LaunchFunc
	group   singleflight.Group
	opts    PoolOptions
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewBrowserPool creates an empty pool
func NewBrowserPool(launch LaunchFunc, opts PoolOptions, m *metrics.Metrics, log *zap.Logger) *BrowserPool {
	defaults := DefaultPoolOptions()
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaults.MaxAge
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaults.IdleTimeout
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaults.PingTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BrowserPool{
		entries: make(map[string]*poolEntry),
		launch:  launch,
		opts:    opts,
		now:     time.Now,
		metrics: m,
		log:     log,
	}
}

// Acquire leases the browser for key, launching one when there is none or
// the pooled one is too old or no longer responds
func (p *BrowserPool) Acquire(ctx context.Context, key string) (*Handle, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	if entry := p.pooled(key); entry != nil {
		pingCtx, cancel := context.WithTimeout(ctx, p.opts.PingTimeout)
		err := entry.browser.Ping(pingCtx)
		cancel()
		if err == nil {
			if h := p.lease(entry); h != nil {
				return h, nil
			}
		} else {
			p.log.Warn("pooled browser unresponsive, replacing", zap.String("key", key), zap.Error(err))
			p.evict(entry, "unresponsive")
		}
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if entry := p.pooled(key); entry != nil {
			return entry, nil
		}
		browser, err := p.launch(ctx)
		if err != nil {
			return nil, fmt.Errorf("launch browser for %s: %w", key, err)
		}

		now := p.now()
		entry := &poolEntry{key: key, browser: browser, createdAt: now, lastUsed: now}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = browser.Close()
			return nil, ErrPoolClosed
		}
		p.entries[key] = entry
		active := len(p.entries)
		p.mu.Unlock()

		p.metrics.BrowserLaunched(key)
		p.metrics.SetActiveBrowsers(active)
		p.log.Info("launched pooled browser", zap.String("key", key))
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	h := p.lease(v.(*poolEntry))
	if h == nil {
		return nil, fmt.Errorf("browser for %s was evicted before use", key)
	}
	return h, nil
}

// pooled returns the live entry for key, evicting it first if it outlived MaxAge
func (p *BrowserPool) pooled(key string) *poolEntry {
	p.mu.Lock()
	entry, ok := p.entries[key]
	expired := ok && entry.inUse == 0 && p.now().Sub(entry.createdAt) > p.opts.MaxAge
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if expired {
		p.evict(entry, "max_age")
		return nil
	}
	return entry
}

func (p *BrowserPool) lease(entry *poolEntry) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.entries[entry.key] != entry {
		return nil
	}
	entry.inUse++
	entry.lastUsed = p.now()
	return &Handle{pool: p, entry: entry}
}

// Release returns a healthy browser to the pool
func (p *BrowserPool) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		p.mu.Lock()
		h.entry.inUse--
		h.entry.lastUsed = p.now()
		p.mu.Unlock()
	})
}

// Discard closes a browser that misbehaved so the next Acquire launches a new one
func (p *BrowserPool) Discard(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		p.mu.Lock()
		h.entry.inUse--
		p.mu.Unlock()
		p.evict(h.entry, "discarded")
	})
}

// Abandon returns h after an operation on its browser failed. When ctx has
// ended the failure says nothing about the browser, which may still serve
// other scrapes, so it is released; otherwise it is discarded.
func (p *BrowserPool) Abandon(ctx context.Context, h *Handle) {
	if ctx.Err() != nil {
		p.Release(h)
		return
	}
	p.Discard(h)
}

func (p *BrowserPool) evict(entry *poolEntry, reason string) {
	p.mu.Lock()
	if p.entries[entry.key] != entry {
		p.mu.Unlock()
		return
	}
	delete(p.entries, entry.key)
	active := len(p.entries)
	p.mu.Unlock()

	if err := entry.browser.Close(); err != nil {
		p.log.Warn("closing browser failed", zap.String("key", entry.key), zap.Error(err))
	}
	p.metrics.BrowserEvicted(entry.key, reason)
	p.metrics.SetActiveBrowsers(active)
	p.log.Info("evicted pooled browser", zap.String("key", entry.key), zap.String("reason", reason))
}

// Cleanup closes idle browsers that are older than MaxAge or unused for
// longer than IdleTimeout, and returns how many were closed
func (p *BrowserPool) Cleanup() int {
	now := p.now()

	type victim struct {
		entry  *poolEntry
		reason string
	}
	var victims []victim

	p.mu.Lock()
	for _, entry := range p.entries {
		if entry.inUse > 0 {
			continue
		}
		switch {
		case now.Sub(entry.createdAt) > p.opts.MaxAge:
			victims = append(victims, victim{entry, "max_age"})
		case now.Sub(entry.lastUsed) > p.opts.IdleTimeout:
			victims = append(victims, victim{entry, "idle"})
		}
	}
	p.mu.Unlock()

	for _, v := range victims {
		p.evict(v.entry, v.reason)
	}
	return len(victims)
}

// Shutdown closes every browser and refuses further leases
func (p *BrowserPool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, entry := range p.entries {
		entries = append(entries, entry)
	}
	p.mu.Unlock()

	for _, entry := range entries {
		p.evict(entry, "shutdown")
	}
}

// Stats lists the pooled browsers sorted by key
func (p *BrowserPool) Stats() []PoolStat {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]PoolStat, 0, len(p.entries))
	for _, entry := range p.entries {
		out = append(out, PoolStat{
			Key:         entry.key,
			AgeSeconds:  now.Sub(entry.createdAt).Seconds(),
			IdleSeconds: now.Sub(entry.lastUsed).Seconds(),
			InUse:       entry.inUse,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
