package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reviewlens/internal/model"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaxonomyCache caches a category's factors and questions
type TaxonomyCache interface {
	Get(ctx context.Context, category string) (*model.Taxonomy, error)
	Set(ctx context.Context, t *model.Taxonomy) error
	Invalidate(ctx context.Context, category string) error
}

type taxonomyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTaxonomyCache(client *redis.Client, ttl time.Duration) TaxonomyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &taxonomyCache{client: client, ttl: ttl}
}

func (c *taxonomyCache) key(category string) string {
	return fmt.Sprintf("taxonomy:%s", category)
}

func (c *taxonomyCache) Get(ctx context.Context, category string) (*model.Taxonomy, error) {
	data, err := c.client.Get(ctx, c.key(category)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var t model.Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *taxonomyCache) Set(ctx context.Context, t *model.Taxonomy) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(t.Category), data, c.ttl).Err()
}

func (c *taxonomyCache) Invalidate(ctx context.Context, category string) error {
	return c.client.Del(ctx, c.key(category)).Err()
}
