package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kantina/backend/internal/domain"
)

const (
	branchesKey    = "kantina:catalog:branches"
	menuKey        = "kantina:catalog:menu"
	summaryKeyBase = "kantina:report:summary:"
)

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(addr string, password string, db int) *RedisCatalogCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCatalogCache{client: client}
}

func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}

func (c *RedisCatalogCache) GetBranches(ctx context.Context) ([]domain.Branch, bool, error) {
	var branches []domain.Branch
	found, err := c.getJSON(ctx, branchesKey, &branches)
	return branches, found, err
}

func (c *RedisCatalogCache) SetBranches(ctx context.Context, branches []domain.Branch, ttl time.Duration) error {
	return c.setJSON(ctx, branchesKey, branches, ttl)
}

func (c *RedisCatalogCache) GetMenu(ctx context.Context) ([]domain.MenuItem, bool, error) {
	var items []domain.MenuItem
	found, err := c.getJSON(ctx, menuKey, &items)
	return items, found, err
}

func (c *RedisCatalogCache) SetMenu(ctx context.Context, items []domain.MenuItem, ttl time.Duration) error {
	return c.setJSON(ctx, menuKey, items, ttl)
}

func (c *RedisCatalogCache) GetSummary(ctx context.Context, key string) (*domain.ReportSummary, bool, error) {
	var summary domain.ReportSummary
	found, err := c.getJSON(ctx, summaryKeyBase+key, &summary)
	if err != nil || !found {
		return nil, found, err
	}
	return &summary, true, nil
}

func (c *RedisCatalogCache) SetSummary(ctx context.Context, key string, summary *domain.ReportSummary, ttl time.Duration) error {
	if summary == nil {
		return nil
	}
	return c.setJSON(ctx, summaryKeyBase+key, summary, ttl)
}

func (c *RedisCatalogCache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCatalogCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
