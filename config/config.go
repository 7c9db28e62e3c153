package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Log       LogConfig       `mapstructure:"log"`

	// Platforms holds PLATFORM_<KEY>_ENABLED overrides keyed by lower-case platform key
	Platforms map[string]bool `mapstructure:"-"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host               string   `mapstructure:"host"`
	Port               string   `mapstructure:"port"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerSecond float64  `mapstructure:"rate_limit_per_second"`
	APIKeys            []string `mapstructure:"api_keys"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds the cache store connection
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig holds the search response cache settings
type CacheConfig struct {
	RedisURL  string        `mapstructure:"redis_url"`
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	// MemoryEntries caps the in-process cache used when RedisURL is empty
	MemoryEntries int `mapstructure:"memory_entries"`
}

// ScraperConfig holds browser and scraping settings
type ScraperConfig struct {
	Debug           bool          `mapstructure:"debug"`
	Headless        bool          `mapstructure:"headless"`
	BrowserBin      string        `mapstructure:"browser_bin"`
	PoolMaxAge      time.Duration `mapstructure:"pool_max_age"`
	PoolIdleTimeout time.Duration `mapstructure:"pool_idle_timeout"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RunHeadless reports whether browsers should launch without a window.
// Debug mode always shows the browser.
func (s ScraperConfig) RunHeadless() bool {
	return s.Headless && !s.Debug
}

// SchedulerConfig holds cron schedules and worker counts
type SchedulerConfig struct {
	PoolCleanupSchedule string `mapstructure:"pool_cleanup_schedule"`
	RefreshSchedule     string `mapstructure:"refresh_schedule"`
	RefreshLimit        int    `mapstructure:"refresh_limit"`
	TaskWorkers         int    `mapstructure:"task_workers"`
}

// MergeConfig selects the cross-platform grouping strategy
type MergeConfig struct {
	Strategy  string  `mapstructure:"strategy"`
	Threshold float64 `mapstructure:"threshold"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"server.host":                     "HOST",
	"server.port":                     "PORT",
	"server.allowed_origins":          "ALLOWED_ORIGINS",
	"server.rate_limit_per_second":    "RATE_LIMIT_PER_SECOND",
	"server.api_keys":                 "API_KEYS",
	"database.url":                    "DATABASE_URL",
	"cache.redis_url":                 "REDIS_URL",
	"cache.search_ttl":                "SEARCH_CACHE_TTL",
	"cache.memory_entries":            "SEARCH_CACHE_ENTRIES",
	"scraper.debug":                   "SCRAPER_DEBUG",
	"scraper.headless":                "SCRAPER_HEADLESS",
	"scraper.browser_bin":             "BROWSER_BIN",
	"scraper.pool_max_age":            "POOL_MAX_AGE",
	"scraper.pool_idle_timeout":       "POOL_IDLE_TIMEOUT",
	"scraper.timeout":                 "SCRAPE_TIMEOUT",
	"scheduler.pool_cleanup_schedule": "POOL_CLEANUP_SCHEDULE",
	"scheduler.refresh_schedule":      "REFRESH_SCHEDULE",
	"scheduler.refresh_limit":         "REFRESH_LIMIT",
	"scheduler.task_workers":          "TASK_WORKERS",
	"merge.strategy":                  "MERGE_STRATEGY",
	"merge.threshold":                 "MERGE_THRESHOLD",
	"log.level":                       "LOG_LEVEL",
}

// Load reads configuration from the environment on top of defaults.
// Call godotenv.Load before this to pick up a .env file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Server.APIKeys = splitList(cfg.Server.APIKeys)
	cfg.Platforms = platformOverrides(os.Environ())

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_second", 10.0)
	v.SetDefault("server.api_keys", []string{})

	v.SetDefault("database.url", "file:database.db")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.search_ttl", "0s")
	v.SetDefault("cache.memory_entries", 1024)

	v.SetDefault("scraper.debug", false)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.browser_bin", "")
	v.SetDefault("scraper.pool_max_age", "10m")
	v.SetDefault("scraper.pool_idle_timeout", "5m")
	v.SetDefault("scraper.timeout", "60s")

	v.SetDefault("scheduler.pool_cleanup_schedule", "@every 5m")
	v.SetDefault("scheduler.refresh_schedule", "0 0 */12 * * *")
	v.SetDefault("scheduler.refresh_limit", 5)
	v.SetDefault("scheduler.task_workers", 2)

	v.SetDefault("merge.strategy", "exact")
	v.SetDefault("merge.threshold", 0.7)

	v.SetDefault("log.level", "info")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}

	cfg.Merge.Strategy = strings.ToLower(strings.TrimSpace(cfg.Merge.Strategy))
	switch cfg.Merge.Strategy {
	case "exact", "fuzzy":
	default:
		return fmt.Errorf("merge strategy must be 'exact' or 'fuzzy', got: %s", cfg.Merge.Strategy)
	}

	if cfg.Merge.Threshold <= 0 || cfg.Merge.Threshold > 1 {
		return fmt.Errorf("merge threshold must be in (0, 1], got: %v", cfg.Merge.Threshold)
	}

	if cfg.Scheduler.TaskWorkers < 1 {
		return fmt.Errorf("TASK_WORKERS must be at least 1, got: %d", cfg.Scheduler.TaskWorkers)
	}

	if cfg.Cache.MemoryEntries < 1 {
		return fmt.Errorf("SEARCH_CACHE_ENTRIES must be at least 1, got: %d", cfg.Cache.MemoryEntries)
	}

	if cfg.Cache.SearchTTL < 0 {
		return fmt.Errorf("SEARCH_CACHE_TTL must not be negative")
	}

	if cfg.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT must be positive")
	}

	return nil
}

// splitList flattens comma separated entries and drops blanks
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// platformOverrides collects PLATFORM_<KEY>_ENABLED variables
func platformOverrides(environ []string) map[string]bool {
	overrides := make(map[string]bool)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "PLATFORM_") || !strings.HasSuffix(name, "_ENABLED") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "PLATFORM_"), "_ENABLED")
		if key == "" {
			continue
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			continue
		}
		overrides[strings.ToLower(key)] = enabled
	}
	return overrides
}
