package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/mastery"
	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
)

func outcomeEvent(eventID string, correct bool) mastery.OutcomeEvent {
	return mastery.OutcomeEvent{
		EventID:        eventID,
		LearnerID:      "learner-1",
		SkillID:        "counting-1",
		Correct:        correct,
		ItemDifficulty: 50,
		LatencyMs:      1200,
	}
}

func TestRecordOutcomeUpdatesRating(t *testing.T) {
	ctx := context.Background()
	svc := NewMasteryService(mastery.DefaultParams(), kv.NewMemoryStore(), nil, nil)

	snap, applied, err := svc.RecordOutcome(ctx, outcomeEvent(uuid.NewString(), true))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Greater(t, snap.Rating, mastery.DefaultParams().Initial)
	assert.Equal(t, 1, snap.WindowSize)
}

func TestRecordOutcomeDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc := NewMasteryService(mastery.DefaultParams(), kv.NewMemoryStore(), nil, nil)

	ev := outcomeEvent(uuid.NewString(), true)
	first, applied, err := svc.RecordOutcome(ctx, ev)
	require.NoError(t, err)
	require.True(t, applied)

	replay, applied, err := svc.RecordOutcome(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied, "replayed event id is not applied twice")
	assert.Equal(t, first.Rating, replay.Rating)
	assert.Equal(t, first.WindowSize, replay.WindowSize)
	assert.Equal(t, ev.EventID, replay.LastEventID)
}

func TestRecordOutcomeValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewMasteryService(mastery.DefaultParams(), kv.NewMemoryStore(), nil, nil)

	cases := []mastery.OutcomeEvent{
		{},
		{EventID: uuid.NewString(), SkillID: "counting-1"},
		{EventID: uuid.NewString(), LearnerID: "learner-1"},
		{EventID: "not-a-uuid", LearnerID: "learner-1", SkillID: "counting-1"},
		{EventID: uuid.NewString(), LearnerID: "learner-1", SkillID: "counting-1", LatencyMs: -1},
	}
	for _, ev := range cases {
		_, applied, err := svc.RecordOutcome(ctx, ev)
		assert.False(t, applied)
		assert.True(t, errors.Is(err, domainerrors.ErrInvalidRequest))
	}
}

func TestGetMasteryDefaultsToInitialRating(t *testing.T) {
	ctx := context.Background()
	svc := NewMasteryService(mastery.DefaultParams(), kv.NewMemoryStore(), nil, nil)

	snap, err := svc.GetMastery(ctx, "learner-9", "shapes-1")
	require.NoError(t, err)
	assert.Equal(t, mastery.DefaultParams().Initial, snap.Rating)
	assert.Equal(t, mastery.RecommendMaintain, snap.Recommendation)

	_, err = svc.GetMastery(ctx, "", "shapes-1")
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidRequest))
}

func TestMasterySurvivesRestart(t *testing.T) {
	ctx := context.Background()
	durable := kv.NewMemoryStore()

	svc := NewMasteryService(mastery.DefaultParams(), durable, nil, nil)
	ev := outcomeEvent(uuid.NewString(), true)
	snap, _, err := svc.RecordOutcome(ctx, ev)
	require.NoError(t, err)

	restarted := NewMasteryService(mastery.DefaultParams(), durable, nil, nil)
	loaded, err := restarted.GetMastery(ctx, "learner-1", "counting-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Rating, loaded.Rating)
	assert.Equal(t, ev.EventID, loaded.LastEventID)

	// Replay protection also survives the restart.
	_, applied, err := restarted.RecordOutcome(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMasteryToleratesDurableOutage(t *testing.T) {
	ctx := context.Background()
	durable := kv.NewMemoryStore()
	durable.SetFailure(errors.New("disk gone"))

	svc := NewMasteryService(mastery.DefaultParams(), durable, nil, nil)
	snap, applied, err := svc.RecordOutcome(ctx, outcomeEvent(uuid.NewString(), true))
	require.NoError(t, err, "outcome recording never fails on durable write errors")
	assert.True(t, applied)
	assert.Greater(t, snap.Rating, mastery.DefaultParams().Initial)
}
