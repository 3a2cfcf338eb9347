package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

// WarmingService bulk-warms entry content when a session starts so the first
// containers of each configured subject are already generating before the
// learner reaches them. Warming runs at the lowest queue priority and is
// bounded by a concurrency limit; a per-key lock keeps concurrent session
// starts from duplicating work.
type WarmingService struct {
	subjects    []string
	concurrency int

	coordinator *generation.Coordinator
	lock        *caching.WarmingLock
	logger      *logging.ChanneledLogger
}

// NewWarmingService creates the warming service.
func NewWarmingService(subjects []string, concurrency int, coordinator *generation.Coordinator, logger *logging.ChanneledLogger) *WarmingService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &WarmingService{
		subjects:    subjects,
		concurrency: concurrency,
		coordinator: coordinator,
		lock:        caching.NewWarmingLock(),
		logger:      logger,
	}
}

// WarmOnSessionStart submits warming tasks for each configured subject's
// entry container. Fire-and-forget: session creation never waits on it.
func (w *WarmingService) WarmOnSessionStart(sc *session.Context) {
	go w.warm(sc.SessionID, sc.LearnerID, sc.Fixed)
}

func (w *WarmingService) warm(sessionID, learnerID string, fixed session.FixedAttributes) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	submitted := 0
	for _, subject := range w.subjects {
		subject := subject
		lockKey := "warm:" + sessionID + ":" + subject
		if !w.lock.TryLock(lockKey) {
			continue
		}
		submitted++
		g.Go(func() error {
			defer w.lock.Unlock(lockKey)
			req := content.Request{
				LearnerID:     learnerID,
				SessionID:     sessionID,
				Subject:       subject,
				SkillID:       subject + "-entry",
				ContainerType: "intro",
				ContentTypes:  []string{content.ItemTypeNarrative},
			}
			_, err := w.coordinator.Submit(ctx, req, fixed, generation.PriorityWarming)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		w.logger.Preload().Warn("Session warming incomplete",
			"sessionId", sessionID, "error", err.Error())
		return
	}
	if submitted > 0 {
		w.logger.Preload().Info("Session warming submitted",
			"sessionId", sessionID, "subjects", submitted, "duration", time.Since(start))
	}
}
