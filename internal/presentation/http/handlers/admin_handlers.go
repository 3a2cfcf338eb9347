package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/container"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

// AdminHandlers exposes the operational surface: cache and queue occupancy,
// transition statistics, health, and log level control.
type AdminHandlers struct {
	container *container.Container
	started   time.Time
}

// NewAdminHandlers creates admin handlers over the container.
func NewAdminHandlers(c *container.Container) *AdminHandlers {
	return &AdminHandlers{container: c, started: time.Now().UTC()}
}

// Health reports liveness.
func (h *AdminHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// CacheStats reports hot-tier occupancy.
func (h *AdminHandlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Cache.Stats())
}

// QueueStats reports generation queue occupancy.
func (h *AdminHandlers) QueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Coordinator.Snapshot())
}

// TransitionStats reports observed container transition counts.
func (h *AdminHandlers) TransitionStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"transitions": h.container.PreloadService.TransitionStats(),
	})
}

// PerformanceStats reports tracked operation timings.
func (h *AdminHandlers) PerformanceStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.PerfTracker.GetOverallStats())
}

// Sessions reports hot and durable session counts.
func (h *AdminHandlers) Sessions(c *gin.Context) {
	resp := gin.H{
		"active": h.container.SessionService.ActiveCount(),
	}
	if durable, err := h.container.SessionService.DurableCount(c.Request.Context()); err == nil {
		resp["durable"] = durable
	} else {
		h.container.Logger.Session().Warn("Durable session count unavailable", "error", err.Error())
	}
	c.JSON(http.StatusOK, resp)
}

// GetLogLevels returns current per-channel log levels.
func (h *AdminHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevelRequest adjusts one logging channel's level.
type SetLogLevelRequest struct {
	Channel string `json:"channel" binding:"required"`
	Level   string `json:"level" binding:"required"`
}

// SetLogLevel adjusts a channel's level at runtime.
func (h *AdminHandlers) SetLogLevel(c *gin.Context) {
	var req SetLogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level, err := parseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": req.Level})
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
