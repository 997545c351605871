package store

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetUniverseCacheExpiry records the last and next universe refresh.
func (s *Store) SetUniverseCacheExpiry(ctx context.Context, modified, expires time.Time) error {
	return s.setCacheExpiry(ctx, "set_universe_cache_expiry", keyUniverseCache, modified, expires)
}

// GetUniverseCacheExpiry returns the last and next universe refresh. Zero
// times mean no refresh was recorded.
func (s *Store) GetUniverseCacheExpiry(ctx context.Context) (CacheExpiry, error) {
	return s.getCacheExpiry(ctx, "get_universe_cache_expiry", keyUniverseCache)
}

// SetMarketGroupCacheExpiry records the last and next market group refresh.
func (s *Store) SetMarketGroupCacheExpiry(ctx context.Context, modified, expires time.Time) error {
	return s.setCacheExpiry(ctx, "set_market_group_cache_expiry", keyMarketGroupCache, modified, expires)
}

// GetMarketGroupCacheExpiry returns the last and next market group refresh.
func (s *Store) GetMarketGroupCacheExpiry(ctx context.Context) (CacheExpiry, error) {
	return s.getCacheExpiry(ctx, "get_market_group_cache_expiry", keyMarketGroupCache)
}

func (s *Store) setCacheExpiry(ctx context.Context, op, key string, modified, expires time.Time) error {
	return s.tx(ctx, op, 1, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"modify", modified.UTC().Format(http.TimeFormat),
			"expire", expires.UTC().Format(http.TimeFormat))
		return nil
	})
}

func (s *Store) getCacheExpiry(ctx context.Context, op, key string) (CacheExpiry, error) {
	f, err := s.getHash(ctx, op, key)
	if err != nil || f == nil {
		return CacheExpiry{}, err
	}

	var out CacheExpiry
	if t, err := http.ParseTime(f["modify"]); err == nil {
		out.Modified = t
	}
	if t, err := http.ParseTime(f["expire"]); err == nil {
		out.Expires = t
	}
	return out, nil
}
