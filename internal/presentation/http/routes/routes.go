// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/container"
	"github.com/AtRiskMedia/lessonforge-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/lessonforge-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	contentHandlers := handlers.NewContentHandlers(container.ContentService, container.Logger, container.PerfTracker)
	sessionHandlers := handlers.NewSessionHandlers(container.SessionService, container.WarmingService, container.PreloadService, container.Logger, container.PerfTracker)
	outcomeHandlers := handlers.NewOutcomeHandlers(container.MasteryService, container.Logger, container.PerfTracker)
	adminHandlers := handlers.NewAdminHandlers(container)

	r.GET("/health", adminHandlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		api.POST("/content", contentHandlers.GetContent)
		api.DELETE("/content", contentHandlers.InvalidateContent)

		api.POST("/sessions", sessionHandlers.CreateSession)
		api.GET("/sessions/:sessionId", sessionHandlers.GetSession)
		api.POST("/sessions/:sessionId/complete", sessionHandlers.CompleteContainer)
		api.DELETE("/sessions/:sessionId", sessionHandlers.EndSession)

		api.POST("/outcomes", outcomeHandlers.RecordOutcome)
		api.GET("/mastery/:learnerId/:skillId", outcomeHandlers.GetMastery)

		admin := api.Group("/admin")
		{
			admin.GET("/cache", adminHandlers.CacheStats)
			admin.GET("/queue", adminHandlers.QueueStats)
			admin.GET("/transitions", adminHandlers.TransitionStats)
			admin.GET("/performance", adminHandlers.PerformanceStats)
			admin.GET("/sessions", adminHandlers.Sessions)
			admin.GET("/logs/levels", adminHandlers.GetLogLevels)
			admin.POST("/logs/levels", adminHandlers.SetLogLevel)
		}
	}

	return r
}
