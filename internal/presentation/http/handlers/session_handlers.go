package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/services"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/session"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
)

// CreateSessionRequest defines the structure for starting a learner session.
type CreateSessionRequest struct {
	LearnerID  string `json:"learnerId" binding:"required"`
	Persona    string `json:"persona" binding:"required"`
	SkillFocus string `json:"skillFocus" binding:"required"`
	Path       string `json:"path"`
}

// CompleteContainerRequest defines the structure for recording progression.
type CompleteContainerRequest struct {
	ContainerID string `json:"containerId" binding:"required"`
	Subject     string `json:"subject"`
}

// SessionHandlers contains all session-related HTTP handlers
type SessionHandlers struct {
	sessionService *services.SessionService
	warmingService *services.WarmingService
	preloadService *services.PreloadService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(sessionService *services.SessionService, warmingService *services.WarmingService, preloadService *services.PreloadService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		sessionService: sessionService,
		warmingService: warmingService,
		preloadService: preloadService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// CreateSession starts a session and kicks off entry content warming.
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	start := time.Now()

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marker := h.perfTracker.StartOperation("create_session_request")
	defer marker.Complete()

	sc, err := h.sessionService.CreateSession(c.Request.Context(), req.LearnerID, session.FixedAttributes{
		Persona:    req.Persona,
		SkillFocus: req.SkillFocus,
		Path:       req.Path,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.warmingService.WarmOnSessionStart(sc)

	marker.SetSuccess(true)
	h.logger.Session().Info("Create session request completed",
		"sessionId", sc.SessionID, "duration", time.Since(start))
	c.JSON(http.StatusCreated, sc)
}

// GetSession returns the session context.
func (h *SessionHandlers) GetSession(c *gin.Context) {
	sc, err := h.sessionService.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

// CompleteContainer records a completed container and triggers predictive
// preloading for likely next content.
func (h *SessionHandlers) CompleteContainer(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req CompleteContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc, err := h.sessionService.MarkContainerComplete(c.Request.Context(), sessionID, req.ContainerID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.preloadService.OnTransition(sessionID, req.Subject, req.ContainerID)
	c.JSON(http.StatusOK, sc)
}

// EndSession tears the session down.
func (h *SessionHandlers) EndSession(c *gin.Context) {
	h.sessionService.EndSession(c.Request.Context(), c.Param("sessionId"))
	c.JSON(http.StatusOK, gin.H{"ended": true})
}
