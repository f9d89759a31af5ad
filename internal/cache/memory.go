package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache is the in-process fallback backend, used when Redis is
// not reachable. Entries still honor per-category TTLs; capacity is
// bounded so a long-running process without Redis stays flat.
type MemoryCache struct {
	cache *ristretto.Cache
}

// NewMemoryCache builds a ristretto-backed cache sized for a few
// thousand API pages.
func NewMemoryCache() (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: c}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.cache.SetWithTTL(key, value, int64(len(value)), ttl)
}

func (c *MemoryCache) Delete(ctx context.Context, key string) {
	c.cache.Del(key)
}

func (c *MemoryCache) Flush(ctx context.Context) error {
	c.cache.Clear()
	return nil
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.cache.Close()
	return nil
}
