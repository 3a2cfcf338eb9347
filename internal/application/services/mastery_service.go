package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/mastery"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
)

const masteryKeyPrefix = "mastery:"

// MasteryService tracks per-learner, per-skill mastery ratings. Outcome
// events are applied exactly once: a replayed event id is a no-op that
// returns the current snapshot unchanged. Ratings are written through to the
// durable store after every applied event.
type MasteryService struct {
	mu      sync.Mutex
	ratings map[string]*mastery.Rating
	params  mastery.Params
	durable kv.Store
	logger  *logging.ChanneledLogger
	metrics *metrics.Metrics
}

// NewMasteryService creates the mastery service.
func NewMasteryService(params mastery.Params, durable kv.Store, logger *logging.ChanneledLogger, m *metrics.Metrics) *MasteryService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &MasteryService{
		ratings: make(map[string]*mastery.Rating),
		params:  params,
		durable: durable,
		logger:  logger,
		metrics: m,
	}
}

func masteryKey(learnerID, skillID string) string {
	return learnerID + ":" + skillID
}

// RecordOutcome applies one answer outcome to the learner's skill rating.
// The second return is false when the event id was already applied; the
// snapshot then reflects the unchanged current state.
func (s *MasteryService) RecordOutcome(ctx context.Context, ev mastery.OutcomeEvent) (mastery.Snapshot, bool, error) {
	if err := validateOutcome(ev); err != nil {
		return mastery.Snapshot{}, false, err
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.load(ctx, ev.LearnerID, ev.SkillID)
	if r.Applied(ev.EventID) {
		s.metrics.OutcomesDuplicate.Inc()
		s.logger.Mastery().Debug("Duplicate outcome event ignored",
			"eventId", ev.EventID, "learnerId", ev.LearnerID, "skillId", ev.SkillID)
		return r.Snapshot(s.params), false, nil
	}

	before := r.Rating
	r.Apply(ev, s.params)
	s.persist(ctx, r)
	s.metrics.OutcomesApplied.Inc()

	s.logger.Mastery().Info("Outcome applied",
		"eventId", ev.EventID, "learnerId", ev.LearnerID, "skillId", ev.SkillID,
		"correct", ev.Correct, "rating", r.Rating, "delta", r.Rating-before,
		"duration", time.Since(start))
	return r.Snapshot(s.params), true, nil
}

// GetMastery returns the current snapshot for a learner and skill. A pair
// with no recorded outcomes reads as the initial rating.
func (s *MasteryService) GetMastery(ctx context.Context, learnerID, skillID string) (mastery.Snapshot, error) {
	if learnerID == "" || skillID == "" {
		return mastery.Snapshot{}, domainerrors.InvalidRequest("learnerId and skillId are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, learnerID, skillID).Snapshot(s.params), nil
}

// load returns the resident rating, falling back to the durable store and
// finally to a fresh initial rating. Caller holds the lock.
func (s *MasteryService) load(ctx context.Context, learnerID, skillID string) *mastery.Rating {
	key := masteryKey(learnerID, skillID)
	if r, ok := s.ratings[key]; ok {
		return r
	}

	if s.durable != nil {
		raw, err := s.durable.Get(ctx, masteryKeyPrefix+key)
		if err == nil {
			var r mastery.Rating
			if uerr := json.Unmarshal(raw, &r); uerr == nil {
				s.ratings[key] = &r
				return &r
			}
			s.logger.Mastery().Warn("Durable rating corrupt, starting fresh",
				"learnerId", learnerID, "skillId", skillID)
		} else if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Mastery().Warn("Durable rating read failed",
				"learnerId", learnerID, "skillId", skillID, "error", err.Error())
		}
	}

	r := mastery.NewRating(learnerID, skillID, s.params)
	s.ratings[key] = r
	return r
}

func (s *MasteryService) persist(ctx context.Context, r *mastery.Rating) {
	if s.durable == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		s.logger.Mastery().Warn("Rating marshal failed",
			"learnerId", r.LearnerID, "skillId", r.SkillID, "error", err.Error())
		return
	}
	if err := s.durable.Put(ctx, masteryKeyPrefix+masteryKey(r.LearnerID, r.SkillID), raw, time.Time{}); err != nil {
		s.logger.Mastery().Warn("Durable rating write failed",
			"learnerId", r.LearnerID, "skillId", r.SkillID, "error", err.Error())
	}
}

func validateOutcome(ev mastery.OutcomeEvent) error {
	switch {
	case ev.EventID == "":
		return domainerrors.InvalidRequest("missing required field: eventId")
	case ev.LearnerID == "":
		return domainerrors.InvalidRequest("missing required field: learnerId")
	case ev.SkillID == "":
		return domainerrors.InvalidRequest("missing required field: skillId")
	case ev.LatencyMs < 0:
		return domainerrors.InvalidRequest("latencyMs must be non-negative")
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		return domainerrors.InvalidRequest("eventId must be a UUID")
	}
	return nil
}
