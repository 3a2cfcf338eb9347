package performance

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerLifecycle(t *testing.T) {
	tr := NewTracker(DefaultAlertThresholds(), nil)

	m := tr.StartOperation("getContent")
	m.SetSuccess(true)
	m.Complete()

	stats := tr.GetOverallStats()
	assert.Equal(t, 1, stats["completedOperations"])
	assert.Equal(t, 0, stats["activeOperations"])
	assert.Equal(t, "1.00", stats["successRate"])

	recent := tr.GetRecentMetrics(time.Minute)
	require.Len(t, recent, 1)
	assert.Equal(t, "getContent", recent[0].Operation)
	assert.True(t, recent[0].Success)
}

func TestConcurrentCompletionAndStats(t *testing.T) {
	tr := NewTracker(DefaultAlertThresholds(), nil)

	const ops = 50
	var wg sync.WaitGroup
	for i := 0; i < ops; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := tr.StartOperation(fmt.Sprintf("op-%d", i))
			m.SetSuccess(i%2 == 0)
			m.Complete()
		}(i)
	}
	// Admin reads race against in-flight completions.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.GetOverallStats()
			tr.GetRecentMetrics(time.Minute)
		}()
	}
	wg.Wait()

	stats := tr.GetOverallStats()
	assert.Equal(t, ops, stats["completedOperations"])
	assert.Equal(t, 0, stats["activeOperations"])
}

func TestCleanupDropsOldMarkers(t *testing.T) {
	tr := NewTracker(DefaultAlertThresholds(), nil)

	old := tr.StartOperation("stale-op")
	tr.mu.Lock()
	old.StartTime = time.Now().UTC().Add(-2 * time.Hour)
	tr.mu.Unlock()
	old.Complete()

	fresh := tr.StartOperation("fresh-op")
	fresh.Complete()

	// An in-flight marker is never reclaimed, however old.
	inflight := tr.StartOperation("inflight-op")
	tr.mu.Lock()
	inflight.StartTime = time.Now().UTC().Add(-2 * time.Hour)
	tr.mu.Unlock()

	assert.Equal(t, 1, tr.Cleanup())
	stats := tr.GetOverallStats()
	assert.Equal(t, 1, stats["completedOperations"])
	assert.Equal(t, 1, stats["activeOperations"])
}

func TestEvictionBoundsResidentMarkers(t *testing.T) {
	tr := NewTracker(DefaultAlertThresholds(), nil)
	tr.maxMarkers = 5

	for i := 0; i < 8; i++ {
		tr.StartOperation(fmt.Sprintf("op-%d", i)).Complete()
	}
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	assert.LessOrEqual(t, len(tr.markers), 5)
}
