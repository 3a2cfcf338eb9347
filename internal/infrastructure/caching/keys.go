package caching

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/gowebpki/jcs"
)

// Key identifies one cacheable content bundle. Keys are a pure function of
// the normalized request, the session's fixed attributes, and the content
// schema version; identical inputs always produce the identical key.
type Key string

func (k Key) String() string { return string(k) }

// keyPayload is the canonical identity hashed into a Key. Field order does
// not matter: the JSON is canonicalized (RFC 8785) before hashing.
type keyPayload struct {
	LearnerID     string                 `json:"learnerId"`
	SessionID     string                 `json:"sessionId"`
	Subject       string                 `json:"subject"`
	SkillID       string                 `json:"skillId"`
	ContainerType string                 `json:"containerType"`
	ContentTypes  []string               `json:"contentTypes"`
	Fixed         session.FixedAttributes `json:"fixedAttributes"`
	SchemaVersion int                    `json:"schemaVersion"`
}

// KeyFor derives the cache key for a request within a session.
func KeyFor(req content.Request, fixed session.FixedAttributes) (Key, error) {
	n := req.Normalize()
	payload := keyPayload{
		LearnerID:     n.LearnerID,
		SessionID:     n.SessionID,
		Subject:       n.Subject,
		SkillID:       n.SkillID,
		ContainerType: n.ContainerType,
		ContentTypes:  n.ContentTypes,
		Fixed:         fixed,
		SchemaVersion: content.SchemaVersion,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cache key: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("cache key: canonicalize: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return Key("bundle:" + hex.EncodeToString(sum[:])), nil
}
