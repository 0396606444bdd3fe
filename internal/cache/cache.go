package cache

import (
	"context"
	"sync"
	"time"

	"dbella/pos/internal/domain"
)

// DashboardCache keeps rendered dashboards per capability set. Invalidate
// drops every entry at once and advances the generation. Set stores the value
// only for the generation read before it was built, so a dashboard computed
// across an invalidation is never served.
type DashboardCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string) (*domain.Dashboard, bool, error)
	Set(ctx context.Context, gen int64, key string, value *domain.Dashboard, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.Dashboard, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ int64, _ string, _ *domain.Dashboard, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}

type memoryEntry struct {
	value     domain.Dashboard
	expiresAt time.Time
}

// MemoryDashboardCache is the in-process fallback used when no Redis address is configured.
type MemoryDashboardCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	gen     int64
	now     func() time.Time
}

func NewMemoryDashboardCache() *MemoryDashboardCache {
	return &MemoryDashboardCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryDashboardCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *MemoryDashboardCache) Get(_ context.Context, key string) (*domain.Dashboard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (c *MemoryDashboardCache) Set(_ context.Context, gen int64, key string, value *domain.Dashboard, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return nil
	}

	c.entries[key] = memoryEntry{value: *value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryDashboardCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.gen++
	return nil
}
