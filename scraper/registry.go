package scraper

import (
	"fmt"
	"strings"
	"sync"

	"pricecart/models"
)

// Registry holds the configured platforms in a fixed order along with their
// runtime enable flags
type Registry struct {
	mu        sync.RWMutex
	order     []string
	platforms map[string]*Platform
	enabled   map[string]bool
}

// NewRegistry registers platforms, applying enable overrides keyed by platform key
func NewRegistry(platforms []*Platform, overrides map[string]bool) *Registry {
	r := &Registry{
		platforms: make(map[string]*Platform, len(platforms)),
		enabled:   make(map[string]bool, len(platforms)),
	}
	for _, p := range platforms {
		if _, dup := r.platforms[p.Key]; dup {
			continue
		}
		r.order = append(r.order, p.Key)
		r.platforms[p.Key] = p
		r.enabled[p.Key] = p.Enabled
		if v, ok := overrides[p.Key]; ok {
			r.enabled[p.Key] = v
		}
	}
	return r
}

// Keys returns every registered platform key in registry order
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// Get returns a platform by key
func (r *Registry) Get(key string) (*Platform, bool) {
	p, ok := r.platforms[strings.ToLower(key)]
	return p, ok
}

// IsEnabled reports whether key is registered and switched on
func (r *Registry) IsEnabled(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[strings.ToLower(key)]
}

// EnabledKeys returns the switched-on platforms in registry order
func (r *Registry) EnabledKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.order))
	for _, key := range r.order {
		if r.enabled[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

// SetEnabled switches a platform on or off
func (r *Registry) SetEnabled(key string, enabled bool) error {
	key = strings.ToLower(key)
	if _, ok := r.platforms[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, key)
	}

	r.mu.Lock()
	r.enabled[key] = enabled
	r.mu.Unlock()
	return nil
}

// Status lists every platform with its current flag
func (r *Registry) Status() []models.PlatformStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.PlatformStatus, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, models.PlatformStatus{
			Platform: key,
			Name:     r.platforms[key].Name,
			Enabled:  r.enabled[key],
		})
	}
	return out
}
