package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/services"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
)

// ContentRequest represents the request body for fetching content.
type ContentRequest struct {
	LearnerID     string   `json:"learnerId" binding:"required"`
	SessionID     string   `json:"sessionId" binding:"required"`
	Subject       string   `json:"subject" binding:"required"`
	SkillID       string   `json:"skillId" binding:"required"`
	ContainerType string   `json:"containerType" binding:"required"`
	ContentTypes  []string `json:"contentTypes"`
	TimeBudgetMs  int      `json:"timeBudgetMs"`
}

// ContentHandlers contains all content-related HTTP handlers
type ContentHandlers struct {
	contentService *services.ContentService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewContentHandlers creates content handlers with injected dependencies
func NewContentHandlers(contentService *services.ContentService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ContentHandlers {
	return &ContentHandlers{
		contentService: contentService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// GetContent serves a content bundle: cache-first, generating on miss within
// the request's time budget.
func (h *ContentHandlers) GetContent(c *gin.Context) {
	start := time.Now()

	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marker := h.perfTracker.StartOperation("get_content_request")
	defer marker.Complete()

	bundle, fromCache, err := h.contentService.GetContent(c.Request.Context(), content.Request{
		LearnerID:     req.LearnerID,
		SessionID:     req.SessionID,
		Subject:       req.Subject,
		SkillID:       req.SkillID,
		ContainerType: req.ContainerType,
		ContentTypes:  req.ContentTypes,
		TimeBudgetMs:  req.TimeBudgetMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	marker.SetSuccess(true)
	h.logger.Generation().Info("Content request completed",
		"sessionId", req.SessionID, "skillId", req.SkillID,
		"fromCache", fromCache, "duration", time.Since(start))

	c.JSON(http.StatusOK, gin.H{
		"bundle":    bundle,
		"fromCache": fromCache,
	})
}

// InvalidateContent removes a cached bundle.
func (h *ContentHandlers) InvalidateContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.contentService.InvalidateContent(c.Request.Context(), content.Request{
		LearnerID:     req.LearnerID,
		SessionID:     req.SessionID,
		Subject:       req.Subject,
		SkillID:       req.SkillID,
		ContainerType: req.ContainerType,
		ContentTypes:  req.ContentTypes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}
