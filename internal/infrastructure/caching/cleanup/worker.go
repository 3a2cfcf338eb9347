// Package cleanup provides the background cache maintenance worker.
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
)

// Worker runs periodic maintenance: content cache sweep (expiry plus LRU
// eviction), expired session reclamation, and performance marker retention.
// Eviction never happens on the request path; this worker is the only place
// it runs.
type Worker struct {
	cache    *caching.ContentCache
	sessions *stores.SessionsStore
	tracker  *performance.Tracker
	config   *Config
	logger   *logging.ChanneledLogger
}

// NewWorker creates a new cleanup worker with injected configuration.
func NewWorker(cache *caching.ContentCache, sessions *stores.SessionsStore, tracker *performance.Tracker, config *Config, logger *logging.ChanneledLogger) *Worker {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Worker{
		cache:    cache,
		sessions: sessions,
		tracker:  tracker,
		config:   config,
		logger:   logger,
	}
}

// Start begins the cleanup worker routine, using the configured interval.
// It blocks until ctx is cancelled, so call it in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.System().Info("Cache cleanup worker started",
		"interval", w.config.CleanupInterval, "verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.System().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.performCleanup(ctx)
		}
	}
}

func (w *Worker) performCleanup(ctx context.Context) {
	start := time.Now()

	stats := w.cache.Sweep(ctx)
	sessionsRemoved := 0
	if w.sessions != nil {
		sessionsRemoved = w.sessions.SweepExpired(time.Now().UTC())
	}
	markersDropped := 0
	if w.tracker != nil {
		markersDropped = w.tracker.Cleanup()
	}

	total := stats.Expired + stats.Evicted + stats.WarmExpired + sessionsRemoved + markersDropped
	if total > 0 {
		w.logger.Cache().Info("Cleanup cycle finished",
			"cacheExpired", stats.Expired, "cacheEvicted", stats.Evicted,
			"warmExpired", stats.WarmExpired, "sessionsRemoved", sessionsRemoved,
			"markersDropped", markersDropped,
			"duration", time.Since(start))
	} else if w.config.VerboseReporting {
		w.logger.Cache().Debug("Cleanup cycle completed, nothing to reclaim",
			"duration", time.Since(start))
	}
}
