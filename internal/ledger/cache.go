package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stockVersionKey = "stock:version"
	// BumpChannel carries the new version after each committed ledger write.
	BumpChannel = "ledger.bump"
)

// ErrCacheWrite marks a level that was computed but could not be stored.
var ErrCacheWrite = errors.New("ledger: stock cache write failed")

// StockCache keeps stock levels in Redis under a global version. A write bumps the version,
// which orphans every snapshot taken before it.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache instantiates the cache. A nil client disables caching.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StockCache{client: client, ttl: ttl}
}

func (c *StockCache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *StockCache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, stockVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, stockVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, stockVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *StockCache) key(ctx context.Context, k StockKey) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return "stock:" + k.String() + ":" + strconv.FormatInt(ver, 10), nil
}

// Fetch returns the cached level of k or computes and stores it with loader. When storing fails
// the computed level is returned together with an error wrapping ErrCacheWrite.
func (c *StockCache) Fetch(ctx context.Context, k StockKey, loader func(context.Context) (StockLevel, error)) (StockLevel, error) {
	if !c.enabled() {
		return loader(ctx)
	}
	cacheKey, err := c.key(ctx, k)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var level StockLevel
		if err := json.Unmarshal(payload, &level); err == nil {
			return level, nil
		}
	}
	level, err := loader(ctx)
	if err != nil {
		return StockLevel{}, err
	}
	raw, err := json.Marshal(level)
	if err != nil {
		return level, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := c.client.Set(ctx, cacheKey, raw, c.ttl).Err(); err != nil {
		return level, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return level, nil
}

// Bump invalidates every snapshot by incrementing the version and publishing it.
func (c *StockCache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, stockVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}
