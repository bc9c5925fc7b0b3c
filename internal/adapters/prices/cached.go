package prices

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"poolvault/internal/adapters/redis"
	"poolvault/pkg/logger"
)

const priceKeyPrefix = "price:"

// CachedSource decorates a Source with a short-lived Redis quote cache.
// A stale upstream does not take valuation down with it: cached quotes
// keep the market-adjusted tier alive for the duration of the TTL.
type CachedSource struct {
	inner Source
	cache *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedSource wraps source with a Redis-backed quote cache
func NewCachedSource(inner Source, cache *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger.Get(),
	}
}

// Name returns the decorated source identifier
func (s *CachedSource) Name() string {
	return s.inner.Name() + "-cached"
}

// Price returns a USD quote, preferring the cache within TTL
func (s *CachedSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := priceKeyPrefix + strings.ToUpper(symbol)

	var cached string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		if p, perr := decimal.NewFromString(cached); perr == nil {
			return p, nil
		}
	} else if err != goredis.Nil {
		s.log.Debugw("Price cache read failed", "symbol", symbol, "error", err)
	}

	price, err := s.inner.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.cache.Set(ctx, key, price.String(), s.ttl); err != nil {
		// Cache write failures are non-fatal
		s.log.Debugw("Price cache write failed", "symbol", symbol, "error", err)
	}

	return price, nil
}
