package fiscal

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "fiscal:config:"
	maxSetAttempts = 3
)

// Cache keeps tenant configurations in Redis so API and worker processes
// share one copy between database reads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached configuration and whether it was present.
func (c *Cache) Get(ctx context.Context, companyID int64) (Config, bool, error) {
	if c == nil || c.client == nil {
		return Config{}, false, nil
	}
	payload, err := c.client.Get(ctx, cacheKey(companyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

// Set stores the configuration with the cache TTL. A cached copy with a later
// UpdatedAt is kept, so a slow reader cannot overwrite a newer save.
func (c *Cache) Set(ctx context.Context, cfg Config) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	key := cacheKey(cfg.CompanyID)
	write := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cached Config
			if json.Unmarshal(current, &cached) == nil && cached.UpdatedAt.After(cfg.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}
	for attempt := 1; attempt <= maxSetAttempts; attempt++ {
		err = c.client.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Invalidate drops the cached configuration of a tenant.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(companyID)).Err()
}

func cacheKey(companyID int64) string {
	return cacheKeyPrefix + strconv.FormatInt(companyID, 10)
}
