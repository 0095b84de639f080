package market_data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisClient is the subset of go-redis used by the cache
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedPriceReader puts a Redis read-through cache in front of the latest
// close lookups used for valuation. Cache failures fall back to the primary.
type CachedPriceReader struct {
	primary domain.LatestPriceReader
	rdb     redisClient
	ttl     time.Duration
	log     zerolog.Logger
}

// NewCachedPriceReader wraps primary with a Redis cache
func NewCachedPriceReader(primary domain.LatestPriceReader, rdb redisClient, ttl time.Duration, log zerolog.Logger) *CachedPriceReader {
	return &CachedPriceReader{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		log:     log.With().Str("component", "price_cache").Logger(),
	}
}

// NewRedisClient parses a redis:// URL into a client
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// LatestClose returns the cached close or reads through to the primary.
// Missing prices are not cached so a later refresh is seen immediately.
func (c *CachedPriceReader) LatestClose(ctx context.Context, ticker string) (float64, bool, error) {
	if raw, err := c.rdb.Get(ctx, latestCloseKey(ticker)).Result(); err == nil {
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			return v, true, nil
		}
	} else if err != redis.Nil {
		c.log.Debug().Err(err).Str("ticker", ticker).Msg("Price cache read failed")
	}

	v, ok, err := c.primary.LatestClose(ctx, ticker)
	if err != nil || !ok {
		return v, ok, err
	}

	if err := c.rdb.Set(ctx, latestCloseKey(ticker), strconv.FormatFloat(v, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("ticker", ticker).Msg("Price cache write failed")
	}
	return v, true, nil
}

// Invalidate drops cached entries after new bars are stored
func (c *CachedPriceReader) Invalidate(ctx context.Context, tickers ...string) {
	if len(tickers) == 0 {
		return
	}
	keys := make([]string, 0, len(tickers))
	for _, t := range tickers {
		keys = append(keys, latestCloseKey(t))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn().Err(err).Int("tickers", len(tickers)).Msg("Price cache invalidation failed")
	}
}

func latestCloseKey(ticker string) string { return fmt.Sprintf("folio:latest_close:%s", ticker) }
