package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/services"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/mastery"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
)

// OutcomeRequest represents one reported answer outcome.
type OutcomeRequest struct {
	EventID        string  `json:"eventId" binding:"required"`
	LearnerID      string  `json:"learnerId" binding:"required"`
	SkillID        string  `json:"skillId" binding:"required"`
	Correct        bool    `json:"correct"`
	ItemDifficulty float64 `json:"itemDifficulty"`
	LatencyMs      int     `json:"latencyMs"`
}

// OutcomeHandlers contains mastery-related HTTP handlers
type OutcomeHandlers struct {
	masteryService *services.MasteryService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewOutcomeHandlers creates outcome handlers with injected dependencies
func NewOutcomeHandlers(masteryService *services.MasteryService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *OutcomeHandlers {
	return &OutcomeHandlers{
		masteryService: masteryService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// RecordOutcome applies an answer outcome to the learner's mastery rating.
// Replays of an already-applied event id return the unchanged snapshot.
func (h *OutcomeHandlers) RecordOutcome(c *gin.Context) {
	start := time.Now()

	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marker := h.perfTracker.StartOperation("record_outcome_request")
	defer marker.Complete()

	snapshot, applied, err := h.masteryService.RecordOutcome(c.Request.Context(), mastery.OutcomeEvent{
		EventID:        req.EventID,
		LearnerID:      req.LearnerID,
		SkillID:        req.SkillID,
		Correct:        req.Correct,
		ItemDifficulty: req.ItemDifficulty,
		LatencyMs:      req.LatencyMs,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	marker.SetSuccess(true)
	h.logger.Mastery().Debug("Record outcome request completed",
		"eventId", req.EventID, "applied", applied, "duration", time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"mastery": snapshot,
		"applied": applied,
	})
}

// GetMastery returns the learner's current mastery snapshot for a skill.
func (h *OutcomeHandlers) GetMastery(c *gin.Context) {
	snapshot, err := h.masteryService.GetMastery(c.Request.Context(),
		c.Param("learnerId"), c.Param("skillId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
