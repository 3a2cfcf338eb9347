// Package content defines the domain entities for requested and generated
// learning content: the normalized content request, the generated bundle, and
// the items a bundle carries.
package content

import (
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the content bundle schema version. It participates in
// cache key derivation so that a schema change invalidates prior entries.
const SchemaVersion = 2

// Request describes a single content request for a learner within a session.
type Request struct {
	LearnerID     string   `json:"learnerId"`
	SessionID     string   `json:"sessionId"`
	Subject       string   `json:"subject"`
	SkillID       string   `json:"skillId"`
	ContainerType string   `json:"containerType"`
	ContentTypes  []string `json:"contentTypes"`
	TimeBudgetMs  int      `json:"timeBudgetMs,omitempty"`
}

// Normalize returns a copy with lowercased identifiers and a sorted,
// de-duplicated content type set. Two requests that differ only in casing or
// content type order normalize identically. The time budget is a QoS hint and
// is deliberately not part of the normalized identity.
func (r Request) Normalize() Request {
	n := Request{
		LearnerID:     strings.TrimSpace(r.LearnerID),
		SessionID:     strings.TrimSpace(r.SessionID),
		Subject:       strings.ToLower(strings.TrimSpace(r.Subject)),
		SkillID:       strings.ToLower(strings.TrimSpace(r.SkillID)),
		ContainerType: strings.ToLower(strings.TrimSpace(r.ContainerType)),
	}
	seen := make(map[string]bool, len(r.ContentTypes))
	for _, ct := range r.ContentTypes {
		ct = strings.ToLower(strings.TrimSpace(ct))
		if ct != "" && !seen[ct] {
			seen[ct] = true
			n.ContentTypes = append(n.ContentTypes, ct)
		}
	}
	sort.Strings(n.ContentTypes)
	return n
}

// Validate checks the required request fields.
func (r Request) Validate() error {
	switch {
	case r.LearnerID == "":
		return errMissing("learnerId")
	case r.SessionID == "":
		return errMissing("sessionId")
	case r.Subject == "":
		return errMissing("subject")
	case r.SkillID == "":
		return errMissing("skillId")
	case r.ContainerType == "":
		return errMissing("containerType")
	}
	return nil
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

func errMissing(field string) error { return fieldError("missing required field: " + field) }

// Item content types with structural requirements enforced by the
// consistency gate.
const (
	ItemTypeCounting     = "counting"
	ItemTypeBinaryChoice = "binary-choice"
	ItemTypeNarrative    = "narrative"
)

// Item is a single exercise or passage inside a bundle.
type Item struct {
	Type       string   `json:"type"`
	Prompt     string   `json:"prompt"`
	AssetRef   string   `json:"assetRef,omitempty"`
	Options    []string `json:"options,omitempty"`
	Answer     string   `json:"answer,omitempty"`
	Difficulty float64  `json:"difficulty"`
}

// Bundle is the generated payload returned for a content request. Persona and
// SkillFocus must mirror the owning session's fixed attributes; the
// consistency gate enforces this before a bundle may be cached.
type Bundle struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	SkillID       string    `json:"skillId"`
	ContainerType string    `json:"containerType"`
	Persona       string    `json:"persona"`
	SkillFocus    string    `json:"skillFocus"`
	Items         []Item    `json:"items"`
	GeneratedAt   time.Time `json:"generatedAt"`
	SchemaVersion int       `json:"schemaVersion"`
}

// Clone returns a deep copy of the bundle. The validator corrects fields on a
// clone so a rejected original is never mutated in place.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	out := *b
	out.Items = make([]Item, len(b.Items))
	for i, item := range b.Items {
		out.Items[i] = item
		if item.Options != nil {
			out.Items[i].Options = append([]string(nil), item.Options...)
		}
	}
	return &out
}
