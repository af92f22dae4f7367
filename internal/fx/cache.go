package fx

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedProvider wraps a RateProvider with a Redis cache and collapses
// concurrent lookups for the same pair into a single upstream call.
type CachedProvider struct {
	inner  RateProvider
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedProvider constructs a CachedProvider.
func NewCachedProvider(inner RateProvider, client *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProvider{inner: inner, client: client, ttl: ttl}
}

func rateKey(from, to string) string {
	return "fx:rate:" + from + ":" + to
}

// GetRate returns a cached rate when fresh, otherwise fetches and stores it.
// Cache failures degrade to a direct provider call; a stale cache must never
// block a submission that the upstream could serve.
func (p *CachedProvider) GetRate(ctx context.Context, from, to string) (float64, error) {
	key := rateKey(from, to)
	if p.client != nil {
		if cached, err := p.client.Get(ctx, key).Result(); err == nil {
			if rate, err := strconv.ParseFloat(cached, 64); err == nil && rate > 0 {
				return rate, nil
			}
		}
	}

	value, err, _ := p.group.Do(key, func() (any, error) {
		rate, err := p.inner.GetRate(ctx, from, to)
		if err != nil {
			return 0.0, err
		}
		if p.client != nil {
			_ = p.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), p.ttl).Err()
		}
		return rate, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(float64), nil
}

// Warm pre-populates the cache for the given base/target pairs. Used by the
// background refresh job; individual pair failures are reported, not fatal.
func (p *CachedProvider) Warm(ctx context.Context, bases, targets []string) error {
	var firstErr error
	for _, from := range bases {
		for _, to := range targets {
			if from == to {
				continue
			}
			if _, err := p.GetRate(ctx, from, to); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
