package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbella/pos/internal/domain"
)

func TestMemoryDashboardCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryDashboardCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, 0, "caps:511", &domain.Dashboard{Since: "2026-03-01"}, time.Minute))

	got, ok, err := c.Get(ctx, "caps:511")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01", got.Since)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "caps:511")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after ttl")

	require.NoError(t, c.Set(ctx, 0, "caps:3", &domain.Dashboard{}, time.Minute))
	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx, "caps:3")
	assert.False(t, ok)
}

func TestNoopDashboardCacheNeverHits(t *testing.T) {
	var c DashboardCache = NoopDashboardCache{}
	require.NoError(t, c.Set(context.Background(), 0, "k", &domain.Dashboard{}, time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDashboardCacheDropsValueBuiltBeforeInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDashboardCache()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	// a checkout lands while the dashboard is being built
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, gen, "caps:511", &domain.Dashboard{Since: "stale"}, time.Minute))

	_, ok, err := c.Get(ctx, "caps:511")
	require.NoError(t, err)
	assert.False(t, ok, "value built before invalidation must not be cached")

	fresh, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, fresh)
	require.NoError(t, c.Set(ctx, fresh, "caps:511", &domain.Dashboard{Since: "fresh"}, time.Minute))
	got, ok, err := c.Get(ctx, "caps:511")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", got.Since)
}
