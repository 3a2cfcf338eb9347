// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/container"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/lessonforge-go/pkg/config"
)

// Initialize performs the complete startup sequence: config, logging, the
// dependency container, background workers, and the HTTP server. It blocks
// until a shutdown signal arrives and then drains gracefully.
func Initialize() error {
	setupLogging()
	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("Initializing...")

	logger, err := logging.NewChanneledLogger(loggerConfig())
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized")

	appContainer, err := container.NewContainer(logger)
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	defer appContainer.Close()
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Background workers: generation pool and cache maintenance.
	appContainer.Coordinator.Start(ctx)

	cleanupWorker := cleanup.NewWorker(appContainer.Cache, appContainer.SessionStore,
		appContainer.PerfTracker, cleanup.NewConfig(), logger)
	go cleanupWorker.Start(ctx)

	logger.Startup().Info("Background workers started",
		"generationWorkers", config.GenerationWorkers,
		"cleanupInterval", config.CacheCleanupInterval)

	srv := server.New(config.Port, appContainer)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	logger.Startup().Info("Startup complete",
		"port", config.Port, "duration", time.Since(start))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Shutdown().Info("Shutdown signal received", "signal", sig.String())
	}

	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Shutdown().Info("Shutdown complete", "uptime", time.Since(start))
	return nil
}

// loggerConfig builds the channeled logger configuration from the central
// config package.
func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogJSON
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDir
	if config.LogVerbose {
		cfg.DefaultLevel = slog.LevelDebug
	}
	return cfg
}

func setupLogging() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
