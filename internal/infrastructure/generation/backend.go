// Package generation runs the content generation pipeline: a priority queue
// of coalesced generation tasks drained by a bounded worker pool, with
// per-task retry, a consistency gate, and cache write-through on success.
package generation

import (
	"context"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
)

// Backend produces a content bundle for a normalized request under a
// session's fixed attributes. Implementations must be safe for concurrent
// use; the worker pool calls Generate from multiple goroutines.
type Backend interface {
	Generate(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error)
}

// BackendFunc adapts a function to the Backend interface. Tests use this to
// script backend behavior.
type BackendFunc func(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error)

func (f BackendFunc) Generate(ctx context.Context, req content.Request, fixed session.FixedAttributes) (*content.Bundle, error) {
	return f(ctx, req, fixed)
}
