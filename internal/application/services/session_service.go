// Package services contains application services orchestrating domain
// entities, infrastructure stores, and the generation pipeline.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
)

const sessionKeyPrefix = "session:"

// SessionService owns learner session lifecycle: creation with immutable
// fixed attributes, TTL-bounded reads, activity touches, and progression
// updates. The hot store serves reads; every mutation is written through to
// the durable store so sessions survive a restart.
type SessionService struct {
	mu      sync.Mutex
	store   *stores.SessionsStore
	durable kv.Store
	ttl     time.Duration
	logger  *logging.ChanneledLogger
	metrics *metrics.Metrics
}

// NewSessionService creates the session service.
func NewSessionService(store *stores.SessionsStore, durable kv.Store, ttl time.Duration, logger *logging.ChanneledLogger, m *metrics.Metrics) *SessionService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &SessionService{
		store:   store,
		durable: durable,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// CreateSession starts a session for a learner with the given fixed
// attributes. The attributes are bound for the session's lifetime and can
// never be changed afterward.
func (s *SessionService) CreateSession(ctx context.Context, learnerID string, fixed session.FixedAttributes) (*session.Context, error) {
	if learnerID == "" {
		return nil, domainerrors.InvalidRequest("missing required field: learnerId")
	}
	if fixed.Persona == "" || fixed.SkillFocus == "" {
		return nil, domainerrors.InvalidRequest("fixed attributes require persona and skillFocus")
	}

	start := time.Now()
	sc := session.NewContext(ulid.Make().String(), learnerID, fixed, s.ttl)

	s.store.Set(sc)
	s.persist(ctx, sc)
	s.metrics.SessionsActive.Inc()

	s.logger.Session().Info("Session created",
		"sessionId", sc.SessionID, "learnerId", learnerID,
		"persona", fixed.Persona, "skillFocus", fixed.SkillFocus,
		"ttl", s.ttl, "duration", time.Since(start))
	return sc.Clone(), nil
}

// GetSession returns a copy of the session context, loading from the durable
// store when the hot tier misses. An expired session is removed from both
// tiers and reported as expired, never silently served.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*session.Context, error) {
	sc, ok := s.store.Get(sessionID)
	if !ok {
		loaded, err := s.loadDurable(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		sc = loaded
		s.store.Set(sc)
		// The session became resident again, so it counts as active until
		// it is expired or ended.
		s.metrics.SessionsActive.Inc()
	}

	if sc.Expired(time.Now().UTC()) {
		s.expire(ctx, sessionID)
		return nil, domainerrors.ErrSessionExpired
	}
	return sc, nil
}

// Touch refreshes the session's activity timestamp, extending its TTL
// window.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sc.LastTouched = time.Now().UTC()
	s.store.Set(sc)
	s.persist(ctx, sc)
	return nil
}

// MarkContainerComplete appends a completed container to the session's
// progression. Completing the same container twice is a no-op.
func (s *SessionService) MarkContainerComplete(ctx context.Context, sessionID, containerID string) (*session.Context, error) {
	if containerID == "" {
		return nil, domainerrors.InvalidRequest("missing required field: containerId")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sc.Completed(containerID) {
		sc.Progression = append(sc.Progression, containerID)
	}
	sc.LastTouched = time.Now().UTC()
	s.store.Set(sc)
	s.persist(ctx, sc)

	s.logger.Session().Debug("Container completed",
		"sessionId", sessionID, "containerId", containerID,
		"progression", len(sc.Progression))
	return sc, nil
}

// EndSession removes the session from both tiers.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) {
	s.expire(ctx, sessionID)
	s.logger.Session().Info("Session ended", "sessionId", sessionID)
}

// ActiveCount returns the number of sessions resident in the hot store.
func (s *SessionService) ActiveCount() int {
	return s.store.Count()
}

// DurableCount returns the number of sessions held in the durable store,
// including ones not currently resident in the hot tier.
func (s *SessionService) DurableCount(ctx context.Context) (int, error) {
	if s.durable == nil {
		return 0, nil
	}
	count := 0
	err := s.durable.Scan(ctx, sessionKeyPrefix, func(key string, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, domainerrors.CacheUnavailable(err)
	}
	return count, nil
}

func (s *SessionService) expire(ctx context.Context, sessionID string) {
	removed := s.store.Delete(sessionID)
	if s.durable != nil {
		if err := s.durable.Delete(ctx, sessionKeyPrefix+sessionID); err != nil {
			s.logger.Session().Warn("Durable session delete failed",
				"sessionId", sessionID, "error", err.Error())
		}
	}
	// Only sessions that were actually resident move the gauge; an unknown
	// id must not drift it negative.
	if removed {
		s.metrics.SessionsActive.Dec()
		s.metrics.SessionsExpired.Inc()
	}
}

func (s *SessionService) persist(ctx context.Context, sc *session.Context) {
	if s.durable == nil {
		return
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		s.logger.Session().Warn("Session marshal failed", "sessionId", sc.SessionID, "error", err.Error())
		return
	}
	expiresAt := sc.LastTouched.Add(sc.TTL)
	if err := s.durable.Put(ctx, sessionKeyPrefix+sc.SessionID, raw, expiresAt); err != nil {
		s.logger.Session().Warn("Durable session write failed",
			"sessionId", sc.SessionID, "error", err.Error())
	}
}

func (s *SessionService) loadDurable(ctx context.Context, sessionID string) (*session.Context, error) {
	if s.durable == nil {
		return nil, domainerrors.ErrSessionNotFound
	}
	raw, err := s.durable.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, domainerrors.ErrSessionNotFound
		}
		return nil, domainerrors.CacheUnavailable(err)
	}
	var sc session.Context
	if err := json.Unmarshal(raw, &sc); err != nil {
		s.logger.Session().Warn("Durable session corrupt",
			"sessionId", sessionID, "error", err.Error())
		return nil, domainerrors.ErrSessionNotFound
	}
	return &sc, nil
}
