package cache

import (
	"context"
	"fmt"
	"time"

	"incentives-backend/internal/config"

	"github.com/sirupsen/logrus"
)

// Category identifies a cached data class. TTLs are fixed per category.
type Category string

const (
	CategoryCampaigns     Category = "campaigns"
	CategoryOpportunities Category = "opportunities"
	CategoryTVL           Category = "tvl"
	CategoryVolume        Category = "volume"
	CategorySnapshot      Category = "snapshot"
)

// Cache is a get/set-with-TTL wrapper. Get never returns an error:
// any backend failure is reported as a miss so callers fall through
// to a live fetch.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// TTLs maps categories to their fixed TTLs, built from config.
type TTLs struct {
	Campaigns     time.Duration
	Opportunities time.Duration
	TVL           time.Duration
	Volume        time.Duration
	Snapshot      time.Duration
}

// TTLsFromConfig builds the TTL table from dashboard configuration.
// The snapshot TTL is floored at the WoW lookback plus refresh slack:
// the baseline snapshot is read one full window after it is written,
// and expiring it earlier silently disables WoW for every refresh.
func TTLsFromConfig(cfg config.DashboardConfig) TTLs {
	snapshot := time.Duration(cfg.SnapshotTTL) * time.Minute
	floor := time.Duration(cfg.Window()+2) * 24 * time.Hour
	if snapshot < floor {
		if cfg.SnapshotTTL > 0 {
			logrus.WithFields(logrus.Fields{
				"configured": snapshot,
				"floor":      floor,
			}).Warn("⚠️ snapshotTtl shorter than the WoW lookback, raising")
		}
		snapshot = floor
	}
	return TTLs{
		Campaigns:     time.Duration(cfg.CampaignTTL) * time.Minute,
		Opportunities: time.Duration(cfg.OpportunityTTL) * time.Minute,
		TVL:           time.Duration(cfg.TVLTTL) * time.Minute,
		Volume:        time.Duration(cfg.VolumeTTL) * time.Minute,
		Snapshot:      snapshot,
	}
}

// For returns the TTL for a category, defaulting to 30 minutes.
func (t TTLs) For(category Category) time.Duration {
	switch category {
	case CategoryCampaigns:
		return t.Campaigns
	case CategoryOpportunities:
		return t.Opportunities
	case CategoryTVL:
		return t.TVL
	case CategoryVolume:
		return t.Volume
	case CategorySnapshot:
		return t.Snapshot
	}
	return 30 * time.Minute
}

// Key builds a namespaced cache key: category:chain:parts...
func Key(category Category, chainID int, parts ...string) string {
	key := fmt.Sprintf("%s:%d", category, chainID)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// New selects a cache backend. Redis is preferred; if it is
// unreachable at startup the in-process cache takes over, and as a
// last resort a no-op cache is returned. Callers never see the
// difference beyond hit rate.
func New(ctx context.Context, cfg config.RedisConfig) Cache {
	redisCache, err := NewRedisCache(ctx, cfg)
	if err == nil {
		logrus.WithField("addr", cfg.Addr()).Info("✅ Redis cache connected")
		return redisCache
	}
	logrus.WithError(err).Warn("⚠️ Redis unavailable, falling back to in-process cache")

	memCache, err := NewMemoryCache()
	if err == nil {
		return memCache
	}
	logrus.WithError(err).Warn("⚠️ In-process cache init failed, running without cache")
	return NoopCache{}
}

// NoopCache always misses. Used when no backend could be initialized.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool)                  { return nil, false }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}
func (NoopCache) Delete(ctx context.Context, key string)                              {}
func (NoopCache) Flush(ctx context.Context) error                                     { return nil }
func (NoopCache) Ping(ctx context.Context) error                                      { return nil }
func (NoopCache) Close() error                                                        { return nil }
