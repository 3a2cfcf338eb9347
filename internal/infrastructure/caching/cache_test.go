package caching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
)

func testBundle(id string) *content.Bundle {
	return &content.Bundle{
		ID:            id,
		Subject:       "math",
		SkillID:       "counting-1",
		ContainerType: "practice",
		Persona:       "explorer",
		SkillFocus:    "numeracy",
		Items: []content.Item{
			{Type: content.ItemTypeCounting, Prompt: "Count the stars", AssetRef: "stars.png", Difficulty: 40},
		},
		GeneratedAt:   time.Now().UTC(),
		SchemaVersion: content.SchemaVersion,
	}
}

func testCache(warm kv.Store, cfg Config) *ContentCache {
	if cfg.HotTTL == 0 {
		cfg.HotTTL = time.Minute
	}
	if cfg.WarmTTL == 0 {
		cfg.WarmTTL = time.Hour
	}
	return New(cfg, warm, nil, nil)
}

func TestCacheHitAndMiss(t *testing.T) {
	ctx := context.Background()
	cc := testCache(kv.NewMemoryStore(), Config{})

	_, ok := cc.Get(ctx, Key("bundle:absent"))
	assert.False(t, ok)

	require.NoError(t, cc.Put(ctx, Key("bundle:a"), testBundle("a"), 0))
	got, ok := cc.Get(ctx, Key("bundle:a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestCacheExpiredEntryIsMissButServesStale(t *testing.T) {
	ctx := context.Background()
	cc := testCache(nil, Config{StaleRetention: time.Minute})

	require.NoError(t, cc.Put(ctx, Key("bundle:a"), testBundle("a"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, ok := cc.Get(ctx, Key("bundle:a"))
	assert.False(t, ok, "expired entry must never be served as fresh")

	stale, ok := cc.GetStale(ctx, Key("bundle:a"))
	require.True(t, ok, "expired entry stays resident for stale fallback")
	assert.Equal(t, "a", stale.ID)
}

func TestCacheWarmTierPromotion(t *testing.T) {
	ctx := context.Background()
	warm := kv.NewMemoryStore()

	writer := testCache(warm, Config{})
	require.NoError(t, writer.Put(ctx, Key("bundle:a"), testBundle("a"), 0))

	// Fresh cache over the same warm store simulates a restart: hot tier
	// empty, warm tier populated.
	reader := testCache(warm, Config{})
	got, ok := reader.Get(ctx, Key("bundle:a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	// Promoted entry now serves from the hot tier even with the warm
	// store failing.
	warm.SetFailure(errors.New("warm tier down"))
	got, ok = reader.Get(ctx, Key("bundle:a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestCacheDegradedModeServesHotOnly(t *testing.T) {
	ctx := context.Background()
	warm := kv.NewMemoryStore()
	warm.SetFailure(errors.New("warm tier down"))
	cc := testCache(warm, Config{})

	require.NoError(t, cc.Put(ctx, Key("bundle:a"), testBundle("a"), 0),
		"durable tier failure must not fail the put")

	got, ok := cc.Get(ctx, Key("bundle:a"))
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestSweepReclaimsExpiredBeyondRetention(t *testing.T) {
	ctx := context.Background()
	cc := testCache(nil, Config{StaleRetention: time.Millisecond})

	require.NoError(t, cc.Put(ctx, Key("bundle:a"), testBundle("a"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	stats := cc.Sweep(ctx)
	assert.Equal(t, 1, stats.Expired)

	_, ok := cc.GetStale(ctx, Key("bundle:a"))
	assert.False(t, ok, "swept entry is gone even for stale reads")
}

func TestSweepEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cc := testCache(nil, Config{MaxEntries: 2})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, cc.Put(ctx, Key("bundle:"+id), testBundle(id), time.Hour))
		time.Sleep(2 * time.Millisecond)
	}

	// Touch a so b becomes the least recently used.
	_, ok := cc.Get(ctx, Key("bundle:a"))
	require.True(t, ok)

	stats := cc.Sweep(ctx)
	assert.Equal(t, 1, stats.Evicted)

	_, ok = cc.Get(ctx, Key("bundle:a"))
	assert.True(t, ok)
	_, ok = cc.Get(ctx, Key("bundle:b"))
	assert.False(t, ok, "least recently used entry is evicted first")
	_, ok = cc.Get(ctx, Key("bundle:c"))
	assert.True(t, ok)
}

func TestSweepHonorsByteCapacity(t *testing.T) {
	ctx := context.Background()
	cc := testCache(nil, Config{CapacityBytes: 600})

	for i := 0; i < 5; i++ {
		key := Key(fmt.Sprintf("bundle:%d", i))
		require.NoError(t, cc.Put(ctx, key, testBundle(fmt.Sprintf("%d", i)), time.Hour))
		time.Sleep(2 * time.Millisecond)
	}

	cc.Sweep(ctx)
	stats := cc.Stats()
	assert.LessOrEqual(t, stats.HotBytes, int64(600))
	assert.Greater(t, stats.HotEntries, 0, "eviction stops once within capacity")
}

func TestInvalidateRemovesBothTiers(t *testing.T) {
	ctx := context.Background()
	warm := kv.NewMemoryStore()
	cc := testCache(warm, Config{})

	require.NoError(t, cc.Put(ctx, Key("bundle:a"), testBundle("a"), 0))
	cc.Invalidate(ctx, Key("bundle:a"))

	_, ok := cc.Get(ctx, Key("bundle:a"))
	assert.False(t, ok)
	assert.Equal(t, 0, warm.Len())
}
