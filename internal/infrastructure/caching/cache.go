// Package caching provides the two-tier content bundle cache: a bounded hot
// in-memory tier in front of a durable warm tier. Expired entries are never
// served as fresh, lookups promote warm hits into the hot tier, and a
// periodic sweep applies LRU eviction off the request path.
package caching

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
)

// Entry is one resident hot-tier cache entry. Entries are owned exclusively
// by the cache and mutated only under its lock.
type Entry struct {
	Key        Key
	Bundle     *content.Bundle
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastAccess time.Time
	HitCount   int64
	Version    int
	size       int64
}

// Expired reports whether the entry's TTL elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// envelope is the warm-tier serialization of an entry.
type envelope struct {
	Bundle    *content.Bundle `json:"bundle"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Version   int             `json:"version"`
}

// Config bounds the hot tier and sets per-tier TTLs.
type Config struct {
	CapacityBytes  int64
	MaxEntries     int
	HotTTL         time.Duration
	WarmTTL        time.Duration
	StaleRetention time.Duration
}

// ContentCache is the two-tier bundle cache. The warm store may be nil, in
// which case the cache runs hot-tier-only from the start.
type ContentCache struct {
	mu         sync.RWMutex
	hot        map[Key]*Entry
	totalBytes int64

	warm    kv.Store
	cfg     Config
	logger  *logging.ChanneledLogger
	metrics *metrics.Metrics
}

// New creates a content cache over the given warm store.
func New(cfg Config, warm kv.Store, logger *logging.ChanneledLogger, m *metrics.Metrics) *ContentCache {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.StaleRetention <= 0 {
		cfg.StaleRetention = 30 * time.Minute
	}
	return &ContentCache{
		hot:     make(map[Key]*Entry),
		warm:    warm,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Get returns the unexpired bundle for key, checking the hot tier first and
// promoting a warm hit. An expired entry is a miss; it remains resident for
// stale fallback until the sweep reclaims it.
func (cc *ContentCache) Get(ctx context.Context, key Key) (*content.Bundle, bool) {
	start := time.Now()
	now := start.UTC()

	cc.mu.Lock()
	if entry, ok := cc.hot[key]; ok && !entry.Expired(now) {
		entry.HitCount++
		entry.LastAccess = now
		bundle := entry.Bundle
		cc.mu.Unlock()
		cc.metrics.CacheHits.WithLabelValues("hot").Inc()
		cc.logger.LogCacheOperation("get", key.String(), true, time.Since(start))
		return bundle, true
	}
	cc.mu.Unlock()

	env, ok := cc.warmGet(ctx, key)
	if !ok || now.After(env.ExpiresAt) {
		cc.metrics.CacheMisses.Inc()
		cc.logger.LogCacheOperation("get", key.String(), false, time.Since(start))
		return nil, false
	}

	// Promote into the hot tier under the hot TTL so a burst of repeat
	// lookups stays in memory.
	cc.insertHot(key, env.Bundle, env.CreatedAt, now.Add(cc.cfg.HotTTL), env.Version)

	cc.metrics.CacheHits.WithLabelValues("warm").Inc()
	cc.logger.LogCacheOperation("get_warm", key.String(), true, time.Since(start))
	return env.Bundle, true
}

// GetStale returns the most recent resident bundle for key even if its TTL
// elapsed. Used as the timeout fallback for interactive waiters.
func (cc *ContentCache) GetStale(ctx context.Context, key Key) (*content.Bundle, bool) {
	cc.mu.RLock()
	if entry, ok := cc.hot[key]; ok {
		bundle := entry.Bundle
		cc.mu.RUnlock()
		return bundle, true
	}
	cc.mu.RUnlock()

	if env, ok := cc.warmGet(ctx, key); ok {
		return env.Bundle, true
	}
	return nil, false
}

// Put stores a validated bundle in both tiers. A zero ttl falls back to the
// configured hot TTL. Durable-tier failure degrades to hot-only with a
// warning; the put itself never fails the request path.
func (cc *ContentCache) Put(ctx context.Context, key Key, bundle *content.Bundle, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cc.cfg.HotTTL
	}
	now := time.Now().UTC()
	cc.insertHot(key, bundle, now, now.Add(ttl), bundle.SchemaVersion)

	if cc.warm == nil {
		return nil
	}
	env := envelope{
		Bundle:    bundle,
		CreatedAt: now,
		ExpiresAt: now.Add(cc.cfg.WarmTTL),
		Version:   bundle.SchemaVersion,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := cc.warm.Put(ctx, key.String(), raw, env.ExpiresAt); err != nil {
		cc.metrics.CacheDegraded.Inc()
		cc.logger.Cache().Warn("Durable tier put failed, serving hot-tier only",
			"key", key.String(), "error", err.Error())
	}
	return nil
}

// Invalidate removes key from both tiers.
func (cc *ContentCache) Invalidate(ctx context.Context, key Key) {
	cc.mu.Lock()
	if entry, ok := cc.hot[key]; ok {
		cc.totalBytes -= entry.size
		delete(cc.hot, key)
	}
	cc.mu.Unlock()

	if cc.warm != nil {
		if err := cc.warm.Delete(ctx, key.String()); err != nil {
			cc.metrics.CacheDegraded.Inc()
			cc.logger.Cache().Warn("Durable tier invalidate failed",
				"key", key.String(), "error", err.Error())
		}
	}
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Expired     int
	Evicted     int
	WarmExpired int
}

// Sweep reclaims entries whose stale-retention window has passed, then
// applies least-recently-used eviction until the hot tier is back within its
// byte and entry caps. Runs off the request path on the cleanup worker's
// schedule, and synchronously in tests.
func (cc *ContentCache) Sweep(ctx context.Context) SweepStats {
	start := time.Now()
	now := start.UTC()
	var stats SweepStats

	cc.mu.Lock()
	for key, entry := range cc.hot {
		if now.Sub(entry.ExpiresAt) > cc.cfg.StaleRetention {
			cc.totalBytes -= entry.size
			delete(cc.hot, key)
			stats.Expired++
		}
	}

	overBytes := cc.cfg.CapacityBytes > 0 && cc.totalBytes > cc.cfg.CapacityBytes
	overEntries := cc.cfg.MaxEntries > 0 && len(cc.hot) > cc.cfg.MaxEntries
	if overBytes || overEntries {
		entries := make([]*Entry, 0, len(cc.hot))
		for _, entry := range cc.hot {
			entries = append(entries, entry)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].LastAccess.Before(entries[j].LastAccess)
		})
		for _, entry := range entries {
			if (cc.cfg.CapacityBytes <= 0 || cc.totalBytes <= cc.cfg.CapacityBytes) &&
				(cc.cfg.MaxEntries <= 0 || len(cc.hot) <= cc.cfg.MaxEntries) {
				break
			}
			cc.totalBytes -= entry.size
			delete(cc.hot, entry.Key)
			stats.Evicted++
		}
	}
	cc.mu.Unlock()

	if cc.warm != nil {
		n, err := cc.warm.DeleteExpired(ctx, now.Add(-cc.cfg.StaleRetention))
		if err != nil {
			cc.metrics.CacheDegraded.Inc()
			cc.logger.Cache().Warn("Durable tier sweep failed", "error", err.Error())
		} else {
			stats.WarmExpired = n
		}
	}

	for i := 0; i < stats.Expired; i++ {
		cc.metrics.CacheExpired.Inc()
	}
	for i := 0; i < stats.Evicted; i++ {
		cc.metrics.CacheEvictions.Inc()
	}

	if stats.Expired > 0 || stats.Evicted > 0 || stats.WarmExpired > 0 {
		cc.logger.Cache().Info("Cache sweep completed",
			"expired", stats.Expired, "evicted", stats.Evicted,
			"warmExpired", stats.WarmExpired, "duration", time.Since(start))
	}
	return stats
}

// Stats is the admin view of cache occupancy.
type Stats struct {
	HotEntries    int   `json:"hotEntries"`
	HotBytes      int64 `json:"hotBytes"`
	CapacityBytes int64 `json:"capacityBytes"`
	MaxEntries    int   `json:"maxEntries"`
}

// Stats reports current hot-tier occupancy.
func (cc *ContentCache) Stats() Stats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return Stats{
		HotEntries:    len(cc.hot),
		HotBytes:      cc.totalBytes,
		CapacityBytes: cc.cfg.CapacityBytes,
		MaxEntries:    cc.cfg.MaxEntries,
	}
}

func (cc *ContentCache) insertHot(key Key, bundle *content.Bundle, createdAt, expiresAt time.Time, version int) {
	raw, err := json.Marshal(bundle)
	size := int64(len(raw))
	if err != nil {
		size = 0
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if existing, ok := cc.hot[key]; ok {
		cc.totalBytes -= existing.size
	}
	cc.hot[key] = &Entry{
		Key:        key,
		Bundle:     bundle,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
		LastAccess: time.Now().UTC(),
		Version:    version,
		size:       size,
	}
	cc.totalBytes += size
}

func (cc *ContentCache) warmGet(ctx context.Context, key Key) (envelope, bool) {
	if cc.warm == nil {
		return envelope{}, false
	}
	raw, err := cc.warm.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			cc.metrics.CacheDegraded.Inc()
			cc.logger.Cache().Warn("Durable tier get failed, degrading to hot tier",
				"key", key.String(), "error", err.Error())
		}
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		cc.logger.Cache().Warn("Durable tier entry corrupt, dropping",
			"key", key.String(), "error", err.Error())
		return envelope{}, false
	}
	if env.Version != content.SchemaVersion {
		return envelope{}, false
	}
	return env, true
}
