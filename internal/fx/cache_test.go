package fx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCacheFixture(t *testing.T, inner RateProvider) (*CachedProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedProvider(inner, client, time.Hour), mr
}

func TestCachedProviderFetchesOnceThenServesFromCache(t *testing.T) {
	inner := &stubProvider{rate: 1.1}
	cached, _ := newCacheFixture(t, inner)
	ctx := context.Background()

	rate, err := cached.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, 1.1, rate)
	require.Equal(t, 1, inner.calls)

	rate, err = cached.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, 1.1, rate)
	require.Equal(t, 1, inner.calls)
}

func TestCachedProviderRefetchesAfterExpiry(t *testing.T) {
	inner := &stubProvider{rate: 1.1}
	cached, mr := newCacheFixture(t, inner)
	ctx := context.Background()

	_, err := cached.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = cached.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedProviderDistinctPairsCachedSeparately(t *testing.T) {
	inner := &stubProvider{rate: 1.1}
	cached, _ := newCacheFixture(t, inner)
	ctx := context.Background()

	_, err := cached.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	_, err = cached.GetRate(ctx, "GBP", "USD")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedProviderPropagatesFailure(t *testing.T) {
	inner := &stubProvider{err: ErrConversion}
	cached, _ := newCacheFixture(t, inner)

	_, err := cached.GetRate(context.Background(), "EUR", "USD")
	require.ErrorIs(t, err, ErrConversion)
}

func TestWarmPopulatesCache(t *testing.T) {
	inner := &stubProvider{rate: 1.25}
	cached, _ := newCacheFixture(t, inner)
	ctx := context.Background()

	err := cached.Warm(ctx, []string{"USD"}, []string{"USD", "EUR", "GBP"})
	require.NoError(t, err)
	// Identity pair skipped, the other two fetched.
	require.Equal(t, 2, inner.calls)

	_, err = cached.GetRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}
