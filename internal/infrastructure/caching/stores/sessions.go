// Package stores provides concrete in-memory store implementations.
package stores

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

// SessionsStore is the hot tier for learner session contexts. The durable
// copy lives in the key/value store; this map serves the request path.
type SessionsStore struct {
	sessions map[string]*session.Context
	mu       sync.RWMutex
	logger   *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions store.
func NewSessionsStore(logger *logging.ChanneledLogger) *SessionsStore {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	logger.Cache().Info("Initializing sessions store")
	return &SessionsStore{
		sessions: make(map[string]*session.Context),
		logger:   logger,
	}
}

// Get returns a copy of the stored context so callers can never mutate the
// resident one. The second return is false when the session is not resident.
func (ss *SessionsStore) Get(sessionID string) (*session.Context, bool) {
	start := time.Now()
	ss.mu.RLock()
	sc, ok := ss.sessions[sessionID]
	ss.mu.RUnlock()

	if !ok {
		ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "sessionId", sessionID, "hit", false, "duration", time.Since(start))
		return nil, false
	}
	ss.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "sessionId", sessionID, "hit", true, "duration", time.Since(start))
	return sc.Clone(), true
}

// Set stores a copy of the context under its session ID.
func (ss *SessionsStore) Set(sc *session.Context) {
	start := time.Now()
	ss.mu.Lock()
	ss.sessions[sc.SessionID] = sc.Clone()
	ss.mu.Unlock()
	ss.logger.Cache().Debug("Cache operation", "operation", "set", "type", "session", "sessionId", sc.SessionID, "duration", time.Since(start))
}

// Delete removes the session and reports whether it was resident.
func (ss *SessionsStore) Delete(sessionID string) bool {
	ss.mu.Lock()
	_, ok := ss.sessions[sessionID]
	delete(ss.sessions, sessionID)
	ss.mu.Unlock()
	return ok
}

// SweepExpired removes every session whose TTL elapsed at now and returns
// how many were removed.
func (ss *SessionsStore) SweepExpired(now time.Time) int {
	start := time.Now()
	ss.mu.Lock()
	removed := 0
	for id, sc := range ss.sessions {
		if sc.Expired(now) {
			delete(ss.sessions, id)
			removed++
		}
	}
	ss.mu.Unlock()

	if removed > 0 {
		ss.logger.Session().Info("Expired sessions swept", "removed", removed, "duration", time.Since(start))
	}
	return removed
}

// Count returns the number of resident sessions.
func (ss *SessionsStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}
