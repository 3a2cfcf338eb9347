// Package services contains domain services: pure business logic operating
// over domain entities, free of transport and persistence concerns.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/rules"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
)

// ValidationContext is the rule context for one bundle check. Rules read the
// bundle against the session's fixed attributes; corrective actions mutate
// the bundle (always a clone, never the caller's original) and record what
// they changed.
type ValidationContext struct {
	Bundle *content.Bundle
	Fixed  session.FixedAttributes

	Corrected []string
}

func (vc *ValidationContext) recordCorrection(field string) {
	vc.Corrected = append(vc.Corrected, field)
}

// ValidationReport is the outcome of one validation pass.
type ValidationReport struct {
	IsConsistent    bool     `json:"isConsistent"`
	Violations      []string `json:"violations,omitempty"`
	CorrectedFields []string `json:"correctedFields,omitempty"`
}

// ConsistencyValidator gates generated bundles: session-alignment rules with
// corrective actions, plus structural rules that cannot be auto-corrected.
// Nothing inconsistent may pass the gate into the cache.
type ConsistencyValidator struct {
	engine  *rules.Engine[*ValidationContext]
	logger  *logging.ChanneledLogger
	metrics *metrics.Metrics
}

// NewConsistencyValidator builds the validator with its fixed rule set.
func NewConsistencyValidator(logger *logging.ChanneledLogger, m *metrics.Metrics) *ConsistencyValidator {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	v := &ConsistencyValidator{
		engine:  rules.NewEngine[*ValidationContext](),
		logger:  logger,
		metrics: m,
	}
	v.registerRules()
	return v
}

func (v *ConsistencyValidator) registerRules() {
	// A bundle with no items is unusable and nothing downstream can repair
	// it, so this rule stops the pass.
	v.engine.MustRegister(rules.Rule[*ValidationContext]{
		Name:          "bundle_has_items",
		Priority:      110,
		StopOnFailure: true,
		Predicate: func(ctx context.Context, vc *ValidationContext) bool {
			return len(vc.Bundle.Items) > 0
		},
	})

	v.engine.MustRegister(rules.Rule[*ValidationContext]{
		Name:     "persona_matches_session",
		Priority: 100,
		Predicate: func(ctx context.Context, vc *ValidationContext) bool {
			return vc.Bundle.Persona == vc.Fixed.Persona
		},
		Action: func(ctx context.Context, vc *ValidationContext) error {
			vc.Bundle.Persona = vc.Fixed.Persona
			vc.recordCorrection("persona")
			return nil
		},
	})

	v.engine.MustRegister(rules.Rule[*ValidationContext]{
		Name:     "skill_focus_matches_session",
		Priority: 90,
		Predicate: func(ctx context.Context, vc *ValidationContext) bool {
			return vc.Bundle.SkillFocus == vc.Fixed.SkillFocus
		},
		Action: func(ctx context.Context, vc *ValidationContext) error {
			vc.Bundle.SkillFocus = vc.Fixed.SkillFocus
			vc.recordCorrection("skillFocus")
			return nil
		},
	})

	// Structural rules carry no corrective action: a missing asset or a
	// malformed option set needs regeneration, not a field rewrite.
	v.engine.MustRegister(rules.Rule[*ValidationContext]{
		Name:     "counting_items_have_asset",
		Priority: 50,
		Predicate: func(ctx context.Context, vc *ValidationContext) bool {
			for _, item := range vc.Bundle.Items {
				if item.Type == content.ItemTypeCounting && item.AssetRef == "" {
					return false
				}
			}
			return true
		},
	})

	v.engine.MustRegister(rules.Rule[*ValidationContext]{
		Name:     "binary_choice_has_two_options",
		Priority: 50,
		Predicate: func(ctx context.Context, vc *ValidationContext) bool {
			for _, item := range vc.Bundle.Items {
				if item.Type == content.ItemTypeBinaryChoice && len(item.Options) != 2 {
					return false
				}
			}
			return true
		},
	})
}

// Validate evaluates the rule set without mutating the bundle.
func (v *ConsistencyValidator) Validate(ctx context.Context, bundle *content.Bundle, fixed session.FixedAttributes) ValidationReport {
	outcome := v.engine.DryRun(ctx, &ValidationContext{Bundle: bundle, Fixed: fixed})
	return ValidationReport{
		IsConsistent: outcome.Passed(),
		Violations:   outcome.Failed(),
	}
}

// AutoCorrect runs corrective actions against a clone of the bundle and
// revalidates the result. The caller's bundle is never touched.
func (v *ConsistencyValidator) AutoCorrect(ctx context.Context, bundle *content.Bundle, fixed session.FixedAttributes) (*content.Bundle, ValidationReport) {
	vc := &ValidationContext{Bundle: bundle.Clone(), Fixed: fixed}
	v.engine.Execute(ctx, vc, rules.Sequential)

	recheck := v.engine.DryRun(ctx, vc)
	return vc.Bundle, ValidationReport{
		IsConsistent:    recheck.Passed(),
		Violations:      recheck.Failed(),
		CorrectedFields: vc.Corrected,
	}
}

// Check is the pipeline gate. A clean bundle passes through; a divergent one
// gets one auto-correct pass; a bundle still inconsistent after correction is
// rejected so it can never be cached or served.
func (v *ConsistencyValidator) Check(ctx context.Context, bundle *content.Bundle, fixed session.FixedAttributes) (*content.Bundle, error) {
	start := time.Now()

	report := v.Validate(ctx, bundle, fixed)
	if report.IsConsistent {
		return bundle, nil
	}

	corrected, report := v.AutoCorrect(ctx, bundle, fixed)
	if !report.IsConsistent {
		v.logger.Validation().Warn("Bundle inconsistent after auto-correct",
			"bundleId", bundle.ID, "violations", fmt.Sprintf("%v", report.Violations),
			"duration", time.Since(start))
		return nil, domainerrors.ConsistencyViolation(report.Violations)
	}

	for range report.CorrectedFields {
		v.metrics.ValidatorCorrections.Inc()
	}
	v.logger.Validation().Info("Bundle auto-corrected",
		"bundleId", bundle.ID, "corrected", fmt.Sprintf("%v", report.CorrectedFields),
		"duration", time.Since(start))
	return corrected, nil
}
