package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
)

// cacheOpTimeout bounds every Redis round trip so a slow cache cannot
// stall a candle fetch
const cacheOpTimeout = 500 * time.Millisecond

// CandleCache caches candle ranges in Redis. A nil cache is a no-op,
// so Redis stays optional.
type CandleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCandleCache creates a Redis-backed candle cache. Returns nil when
// client is nil.
func NewCandleCache(client *redis.Client, ttl time.Duration) *CandleCache {
	if client == nil {
		return nil
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &CandleCache{client: client, ttl: ttl}
}

// Get returns the cached range, or nil and false on a miss. Cache
// errors count as misses.
func (c *CandleCache) Get(ctx context.Context, figi string, interval db.CandleInterval, from, to time.Time) ([]*db.Candle, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	key := cacheKey(figi, interval, from, to)

	cacheCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis get error, treating as cache miss")
		}
		return nil, false
	}

	var candles []*db.Candle
	if err := json.Unmarshal([]byte(cached), &candles); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached candles")
		return nil, false
	}

	metrics.CandlesFetched.WithLabelValues("cache").Add(float64(len(candles)))
	return candles, true
}

// Set stores the range with the configured TTL. Failures are logged;
// the caller's fetch already succeeded.
func (c *CandleCache) Set(ctx context.Context, figi string, interval db.CandleInterval, from, to time.Time, candles []*db.Candle) {
	if c == nil || c.client == nil {
		return
	}

	key := cacheKey(figi, interval, from, to)

	data, err := json.Marshal(candles)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to marshal candles for cache")
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache candles")
	}
}

func cacheKey(figi string, interval db.CandleInterval, from, to time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d:%d", figi, interval, from.UTC().Unix(), to.UTC().Unix())
}
