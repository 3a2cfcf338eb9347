package services

import (
	"context"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
)

// ContentService is the interactive read path: cache lookup, coalesced
// generation on miss, and a bounded wait with stale fallback when the
// backend cannot deliver inside the request's time budget.
type ContentService struct {
	cache       *caching.ContentCache
	coordinator *generation.Coordinator
	sessions    *SessionService

	defaultBudget time.Duration
	maxBudget     time.Duration

	logger  *logging.ChanneledLogger
	metrics *metrics.Metrics
}

// NewContentService creates the content service.
func NewContentService(cache *caching.ContentCache, coordinator *generation.Coordinator, sessions *SessionService, defaultBudget, maxBudget time.Duration, logger *logging.ChanneledLogger, m *metrics.Metrics) *ContentService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &ContentService{
		cache:         cache,
		coordinator:   coordinator,
		sessions:      sessions,
		defaultBudget: defaultBudget,
		maxBudget:     maxBudget,
		logger:        logger,
		metrics:       m,
	}
}

// GetContent serves a content request. The second return reports whether the
// bundle came from cache (fresh or stale) rather than a completed
// generation.
func (s *ContentService) GetContent(ctx context.Context, req content.Request) (*content.Bundle, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, domainerrors.InvalidRequest(err.Error())
	}

	sc, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, false, err
	}
	if sc.LearnerID != req.LearnerID {
		return nil, false, domainerrors.InvalidRequest("learnerId does not match session")
	}

	key, err := caching.KeyFor(req, sc.Fixed)
	if err != nil {
		return nil, false, err
	}

	if bundle, ok := s.cache.Get(ctx, key); ok {
		return bundle, true, nil
	}

	handle, err := s.coordinator.Submit(ctx, req, sc.Fixed, generation.PriorityInteractive)
	if err != nil {
		return nil, false, err
	}

	budget := s.budgetFor(req)
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-handle.Done():
		bundle, err := handle.Result()
		if err != nil {
			return nil, false, err
		}
		return bundle, false, nil

	case <-ctx.Done():
		return nil, false, ctx.Err()

	case <-timer.C:
		// Budget elapsed with generation still in flight. A previously
		// cached bundle, even an expired one, beats an error page.
		if stale, ok := s.cache.GetStale(ctx, key); ok {
			s.metrics.StaleFallbacks.Inc()
			s.logger.Generation().Warn("Serving stale bundle, generation over budget",
				"sessionId", req.SessionID, "skillId", req.SkillID, "budget", budget)
			return stale, true, nil
		}
		return nil, false, domainerrors.GenerationTimeout(int(budget / time.Millisecond))
	}
}

// InvalidateContent removes the cached bundle for a request from both cache
// tiers.
func (s *ContentService) InvalidateContent(ctx context.Context, req content.Request) error {
	sc, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return err
	}
	key, err := caching.KeyFor(req, sc.Fixed)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, key)
	return nil
}

// budgetFor clamps the request's time budget between the default and the
// configured maximum.
func (s *ContentService) budgetFor(req content.Request) time.Duration {
	budget := time.Duration(req.TimeBudgetMs) * time.Millisecond
	if budget <= 0 {
		budget = s.defaultBudget
	}
	if budget > s.maxBudget {
		budget = s.maxBudget
	}
	return budget
}
