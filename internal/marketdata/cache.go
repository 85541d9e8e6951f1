package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stock-trading-engine/internal/metrics"
)

// cachedEntry holds one fetched payload with its fetch time.
type cachedEntry struct {
	Bars       BarSeries    `json:"bars"`
	Indicators IndicatorSet `json:"indicators"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Cache is the thread-safe TTL cache in front of the data server. Entries
// live in process memory; when a Redis client is attached, entries are
// mirrored there so restarts and sibling processes share warm data. Redis
// being down degrades silently to memory-only.
type Cache struct {
	entries sync.Map // "symbol:interval" -> *cachedEntry
	ttl     time.Duration

	rdb    *redis.Client
	logger zerolog.Logger

	// Statistics
	hitCount  int64
	missCount int64
	statsMu   sync.RWMutex
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{ttl: ttl, logger: logger}
}

// AttachRedis enables the Redis mirror layer.
func (c *Cache) AttachRedis(rdb *redis.Client) {
	c.rdb = rdb
}

func cacheKey(symbol, interval string) string {
	return symbol + ":" + interval
}

// Get returns fresh cached data or (nil, false) when missing or stale.
func (c *Cache) Get(ctx context.Context, symbol, interval string) (*cachedEntry, bool) {
	if val, ok := c.entries.Load(cacheKey(symbol, interval)); ok {
		entry := val.(*cachedEntry)
		if time.Since(entry.UpdatedAt) < c.ttl {
			c.recordHit()
			return entry, true
		}
	}

	// Memory miss: a sibling process may have fetched recently.
	if c.rdb != nil {
		if entry := c.redisGet(ctx, symbol, interval); entry != nil {
			c.entries.Store(cacheKey(symbol, interval), entry)
			c.recordHit()
			return entry, true
		}
	}

	c.recordMiss()
	return nil, false
}

// Put stores a fetched payload in memory and, best effort, in Redis.
func (c *Cache) Put(ctx context.Context, symbol, interval string, bars BarSeries, indicators IndicatorSet) {
	entry := &cachedEntry{Bars: bars, Indicators: indicators, UpdatedAt: time.Now()}
	c.entries.Store(cacheKey(symbol, interval), entry)
	if c.rdb != nil {
		c.redisPut(ctx, symbol, interval, entry)
	}
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.hitCount, c.missCount
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hitCount++
	c.statsMu.Unlock()
	metrics.CacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.missCount++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *Cache) redisGet(ctx context.Context, symbol, interval string) *cachedEntry {
	blob, err := c.rdb.Get(ctx, "md:"+cacheKey(symbol, interval)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Msg("redis cache read failed")
		}
		return nil
	}
	var entry cachedEntry
	if err := json.Unmarshal(blob, &entry); err != nil {
		return nil
	}
	if time.Since(entry.UpdatedAt) >= c.ttl {
		return nil
	}
	return &entry
}

func (c *Cache) redisPut(ctx context.Context, symbol, interval string, entry *cachedEntry) {
	blob, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, "md:"+cacheKey(symbol, interval), blob, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("redis cache write failed")
	}
}
