package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
)

var fixed = session.FixedAttributes{Persona: "explorer", SkillFocus: "numeracy"}

func validBundle() *content.Bundle {
	return &content.Bundle{
		ID:            "b-1",
		Subject:       "math",
		SkillID:       "counting-1",
		ContainerType: "practice",
		Persona:       "explorer",
		SkillFocus:    "numeracy",
		Items: []content.Item{
			{Type: content.ItemTypeCounting, Prompt: "Count the apples", AssetRef: "apples.png", Difficulty: 40},
			{Type: content.ItemTypeBinaryChoice, Prompt: "More or fewer?", Options: []string{"more", "fewer"}, Answer: "more", Difficulty: 45},
		},
		GeneratedAt:   time.Now().UTC(),
		SchemaVersion: content.SchemaVersion,
	}
}

func TestValidateConsistentBundle(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)
	report := v.Validate(context.Background(), validBundle(), fixed)
	assert.True(t, report.IsConsistent)
	assert.Empty(t, report.Violations)
}

func TestValidateDetectsPersonaDivergence(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)
	b := validBundle()
	b.Persona = "astronaut"

	report := v.Validate(context.Background(), b, fixed)
	assert.False(t, report.IsConsistent)
	assert.Contains(t, report.Violations, "persona_matches_session")
	assert.Equal(t, "astronaut", b.Persona, "dry-run validation never mutates")
}

func TestAutoCorrectRealignsSessionFields(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)
	b := validBundle()
	b.Persona = "astronaut"
	b.SkillFocus = "geometry"

	corrected, report := v.AutoCorrect(context.Background(), b, fixed)
	assert.True(t, report.IsConsistent)
	assert.ElementsMatch(t, []string{"persona", "skillFocus"}, report.CorrectedFields)
	assert.Equal(t, "explorer", corrected.Persona)
	assert.Equal(t, "numeracy", corrected.SkillFocus)

	assert.Equal(t, "astronaut", b.Persona, "original bundle is untouched")
}

func TestCheckPassesCleanBundleThrough(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)
	b := validBundle()

	out, err := v.Check(context.Background(), b, fixed)
	require.NoError(t, err)
	assert.Same(t, b, out, "clean bundles skip the correction clone")
}

func TestCheckRejectsStructuralViolations(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)

	b := validBundle()
	b.Items[0].AssetRef = ""

	out, err := v.Check(context.Background(), b, fixed)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrConsistencyViolation),
		"a counting item without an asset cannot be auto-corrected")
}

func TestCheckRejectsMalformedBinaryChoice(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)

	b := validBundle()
	b.Items[1].Options = []string{"only-one"}

	_, err := v.Check(context.Background(), b, fixed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrConsistencyViolation))
}

func TestCheckRejectsEmptyBundle(t *testing.T) {
	v := NewConsistencyValidator(nil, nil)

	b := validBundle()
	b.Items = nil

	_, err := v.Check(context.Background(), b, fixed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainerrors.ErrConsistencyViolation))
}
