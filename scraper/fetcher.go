package scraper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// LaunchOptions configures how browsers are started
type LaunchOptions struct {
	Headless bool
	Bin      string
}

// RodBrowser is a go-rod browser together with the process that backs it
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// Rod returns the underlying rod browser
func (b *RodBrowser) Rod() *rod.Browser {
	return b.browser
}

// Ping checks that the browser still answers CDP calls
func (b *RodBrowser) Ping(ctx context.Context) error {
	if _, err := (proto.BrowserGetVersion{}).Call(b.browser.Context(ctx)); err != nil {
		return fmt.Errorf("browser not responding: %w", err)
	}
	return nil
}

// Close shuts the browser down and kills its process
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}

// NewRodLauncher returns a LaunchFunc starting Chromium through go-rod. The
// system Chromium is preferred when present, otherwise rod downloads one.
func NewRodLauncher(opts LaunchOptions, log *zap.Logger) LaunchFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context) (Browser, error) {
		l := launcher.New().
			Headless(opts.Headless).
			NoSandbox(true).
			Leakless(false).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage")

		switch {
		case opts.Bin != "":
			l = l.Bin(opts.Bin)
		case fileExists("/usr/bin/chromium-browser"):
			l = l.Bin("/usr/bin/chromium-browser")
		case fileExists("/usr/bin/chromium"):
			l = l.Bin("/usr/bin/chromium")
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chromium: %w", err)
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			return nil, fmt.Errorf("connect to chromium: %w", err)
		}

		log.Debug("browser launched", zap.String("control_url", controlURL), zap.Bool("headless", opts.Headless))
		return &RodBrowser{browser: browser, launcher: l}, nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RodFetcher loads search pages in pooled go-rod browsers, one page per fetch
type RodFetcher struct {
	pool *BrowserPool
	log  *zap.Logger
}

// NewRodFetcher creates a fetcher on top of pool
func NewRodFetcher(pool *BrowserPool, log *zap.Logger) *RodFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RodFetcher{pool: pool, log: log}
}

// Fetch renders url and returns its HTML once the wait condition is met or
// its attempts run out
func (f *RodFetcher) Fetch(ctx context.Context, platform string, url string, wait WaitSpec) (*Page, error) {
	h, err := f.pool.Acquire(ctx, platform)
	if err != nil {
		return nil, err
	}

	rb, ok := h.Browser().(*RodBrowser)
	if !ok {
		f.pool.Release(h)
		return nil, fmt.Errorf("pooled browser for %s is not a rod browser", platform)
	}

	page, err := rb.Rod().Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		f.pool.Abandon(ctx, h)
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.pool.Release(h)
	defer func() { _ = page.Close() }()

	if err := f.prepare(page); err != nil {
		return nil, err
	}

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	f.waitForContent(ctx, page, platform, wait)

	if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight / 2)`); err != nil {
		f.log.Debug("scroll failed", zap.String("platform", platform), zap.Error(err))
	}
	if err := sleepCtx(ctx, time.Second); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	return &Page{URL: url, Title: title, HTML: html}, nil
}

func (f *RodFetcher) prepare(page *rod.Page) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1366,
		Height:            768,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      desktopUserAgent,
		AcceptLanguage: "en-IN,en;q=0.9",
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if _, err := page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`); err != nil {
		return fmt.Errorf("hide webdriver flag: %w", err)
	}
	return nil
}

// waitForContent polls the rendered text until enough rupee prices or
// enough body text have appeared, waiting a little longer each attempt
func (f *RodFetcher) waitForContent(ctx context.Context, page *rod.Page, platform string, wait WaitSpec) {
	for attempt := 1; attempt <= wait.Attempts; attempt++ {
		res, err := page.Eval(`() => {
			const text = document.body ? document.body.innerText : "";
			return { prices: (text.match(/₹\s*\d+/g) || []).length, length: text.length };
		}`)
		if err == nil {
			prices := res.Value.Get("prices").Int()
			length := res.Value.Get("length").Int()
			if prices >= wait.MinPriceMarkers || length > wait.MinBodyLength {
				f.log.Debug("content ready",
					zap.String("platform", platform),
					zap.Int("attempt", attempt),
					zap.Int("prices", prices),
					zap.Int("length", length),
				)
				return
			}
		}
		if sleepCtx(ctx, wait.Delay*time.Duration(attempt)) != nil {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
