package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qandu/ai-relay/internal/domain"
)

const catalogCacheKey = "catalog:selectable"

// CatalogCache holds the joined enabled catalog between fetches. Backends:
// in-memory for single instances, Redis for shared deployments.
type CatalogCache interface {
	Get(ctx context.Context) ([]domain.SelectableModel, bool)
	Set(ctx context.Context, catalog []domain.SelectableModel, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type InMemoryCatalogCache struct {
	mu        sync.RWMutex
	catalog   []domain.SelectableModel
	expiresAt time.Time
}

func NewInMemoryCatalogCache() *InMemoryCatalogCache {
	return &InMemoryCatalogCache{}
}

func (c *InMemoryCatalogCache) Get(ctx context.Context) ([]domain.SelectableModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.catalog == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.catalog, true
}

func (c *InMemoryCatalogCache) Set(ctx context.Context, catalog []domain.SelectableModel, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = catalog
	c.expiresAt = time.Now().Add(ttl)
	return nil
}

func (c *InMemoryCatalogCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = nil
	return nil
}

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(redisURL string) (*RedisCatalogCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCatalogCache{client: client}, nil
}

func (c *RedisCatalogCache) Get(ctx context.Context) ([]domain.SelectableModel, bool) {
	data, err := c.client.Get(ctx, catalogCacheKey).Bytes()
	if err != nil {
		return nil, false
	}

	var catalog []domain.SelectableModel
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, false
	}

	return catalog, true
}

func (c *RedisCatalogCache) Set(ctx context.Context, catalog []domain.SelectableModel, ttl time.Duration) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, catalogCacheKey, data, ttl).Err()
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogCacheKey).Err()
}

func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}
