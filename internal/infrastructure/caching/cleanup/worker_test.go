package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
)

func TestPerformCleanupReclaimsAllStores(t *testing.T) {
	ctx := context.Background()

	cache := caching.New(caching.Config{HotTTL: time.Minute, WarmTTL: time.Hour}, nil, nil, nil)

	sessions := stores.NewSessionsStore(nil)
	expired := session.NewContext("sess-old", "learner-1",
		session.FixedAttributes{Persona: "explorer", SkillFocus: "numeracy"}, time.Minute)
	expired.LastTouched = time.Now().UTC().Add(-time.Hour)
	sessions.Set(expired)

	tracker := performance.NewTracker(performance.DefaultAlertThresholds(), nil)
	stale := tracker.StartOperation("old-op")
	stale.StartTime = time.Now().UTC().Add(-2 * time.Hour)
	stale.Complete()

	w := NewWorker(cache, sessions, tracker, &Config{CleanupInterval: time.Minute}, nil)
	w.performCleanup(ctx)

	assert.Equal(t, 0, sessions.Count(), "expired session swept")
	stats := tracker.GetOverallStats()
	assert.Equal(t, 0, stats["completedOperations"], "stale marker dropped")
}

func TestPerformCleanupToleratesNilCollaborators(t *testing.T) {
	cache := caching.New(caching.Config{HotTTL: time.Minute, WarmTTL: time.Hour}, nil, nil, nil)
	w := NewWorker(cache, nil, nil, &Config{CleanupInterval: time.Minute}, nil)
	w.performCleanup(context.Background())
}
