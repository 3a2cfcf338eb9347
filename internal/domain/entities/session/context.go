// Package session provides domain entities for learner session state.
// A session binds a learner to one consistent set of fixed content attributes
// (persona, skill focus, learning path) for a bounded lifetime.
package session

import "time"

// FixedAttributes are the content attributes bound to a session at creation.
// They are carried by value and never exposed through a mutation path: every
// read hands out a copy, so generated content can be checked against them
// without locking.
type FixedAttributes struct {
	Persona    string `json:"persona"`
	SkillFocus string `json:"skillFocus"`
	Path       string `json:"path,omitempty"`
}

// Context represents one learner session. Fixed attributes are immutable
// after creation; only Progression and LastTouched change over the session's
// lifetime, and those mutations are synchronized by the session manager.
type Context struct {
	SessionID   string          `json:"sessionId"`
	LearnerID   string          `json:"learnerId"`
	Fixed       FixedAttributes `json:"fixedAttributes"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastTouched time.Time       `json:"lastTouchedAt"`
	TTL         time.Duration   `json:"ttl"`
	Progression []string        `json:"progression"`
}

// NewContext creates a session context with the given identity and fixed
// attributes.
func NewContext(sessionID, learnerID string, fixed FixedAttributes, ttl time.Duration) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:   sessionID,
		LearnerID:   learnerID,
		Fixed:       fixed,
		CreatedAt:   now,
		LastTouched: now,
		TTL:         ttl,
		Progression: []string{},
	}
}

// Expired reports whether the session's inactivity TTL has elapsed at now.
func (c *Context) Expired(now time.Time) bool {
	return now.Sub(c.LastTouched) > c.TTL
}

// Clone returns a deep copy. The session manager hands copies to callers so
// shared contexts are never mutated outside its lock.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.Progression = append([]string(nil), c.Progression...)
	return &out
}

// Completed reports whether the given container already appears in the
// session progression.
func (c *Context) Completed(containerID string) bool {
	for _, id := range c.Progression {
		if id == containerID {
			return true
		}
	}
	return false
}
