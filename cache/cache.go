package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pricecart:search:"

// Store holds serialized search responses for a short time
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// SearchKey builds the cache key for a search query and limit
func SearchKey(query string, limit int) string {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s%s:%d", keyPrefix, q, limit)
}

// GetJSON loads a cached value into v. It reports false on a miss.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key for ttl
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// DefaultMemoryEntries caps the in-memory store when no size is configured
const DefaultMemoryEntries = 1024

// New returns a Redis store when redisURL is set and an in-memory LRU otherwise.
// The in-memory store expires every entry after ttl.
func New(ctx context.Context, redisURL string, size int, ttl time.Duration) (Store, error) {
	if redisURL == "" {
		return NewMemoryStore(size, ttl), nil
	}
	return NewRedisStore(ctx, redisURL)
}

// MemoryStore is a process-local Store backed by an expiring LRU.
// The ttl is fixed when the store is created; the per-call ttl of Set is ignored.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryStore creates an empty store holding at most size entries for ttl each
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.lru.Get(key)
	return value, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.lru.Add(key, value)
	return nil
}

// Len reports the number of live entries
func (m *MemoryStore) Len() int { return m.lru.Len() }

func (m *MemoryStore) Close() error {
	m.lru.Purge()
	return nil
}

// RedisStore keeps entries in Redis with native expiry
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
