// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AtRiskMedia/lessonforge-go/internal/application/services"
	"github.com/AtRiskMedia/lessonforge-go/internal/domain/entities/mastery"
	domainservices "github.com/AtRiskMedia/lessonforge-go/internal/domain/services"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/generation"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/kv"
	"github.com/AtRiskMedia/lessonforge-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
type Container struct {
	// Observability
	Logger      *logging.ChanneledLogger
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry
	PerfTracker *performance.Tracker

	// Infrastructure
	KVStore      kv.Store
	Cache        *caching.ContentCache
	SessionStore *stores.SessionsStore
	Coordinator  *generation.Coordinator
	Validator    *domainservices.ConsistencyValidator

	// Application services
	SessionService *services.SessionService
	ContentService *services.ContentService
	MasteryService *services.MasteryService
	PreloadService *services.PreloadService
	WarmingService *services.WarmingService
}

// NewContainer creates and wires all singleton services from the initialized
// config package.
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	perfTracker := performance.NewTracker(performance.DefaultAlertThresholds(), logger)

	store, err := kv.NewSQLStore(config.DBDriver, config.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("container: open durable store: %w", err)
	}

	cache := caching.New(caching.Config{
		CapacityBytes:  int64(config.HotCacheCapacityMB) * 1024 * 1024,
		MaxEntries:     config.HotCacheMaxEntries,
		HotTTL:         config.HotCacheTTL,
		WarmTTL:        config.WarmCacheTTL,
		StaleRetention: config.StaleRetention,
	}, store, logger, m)

	sessionStore := stores.NewSessionsStore(logger)
	validator := domainservices.NewConsistencyValidator(logger, m)

	backend, err := newBackend(logger)
	if err != nil {
		return nil, err
	}

	coordinator := generation.NewCoordinator(generation.Config{
		Workers:     config.GenerationWorkers,
		MaxAttempts: config.GenerationMaxAttempts,
		BackoffBase: config.GenerationBackoffBase,
		BackoffMax:  config.GenerationBackoffMax,
		CacheTTL:    config.HotCacheTTL,
	}, backend, validator, cache, logger, m)

	sessionService := services.NewSessionService(sessionStore, store, config.SessionTTL, logger, m)
	contentService := services.NewContentService(cache, coordinator, sessionService,
		config.InteractiveBudget, config.InteractiveBudgetMax, logger, m)

	masteryParams := mastery.Params{
		K:                config.MasteryK,
		Scale:            config.MasteryScale,
		LowerBound:       0,
		UpperBound:       100,
		Initial:          config.MasteryInitial,
		WindowSize:       config.MasteryWindowSize,
		StreakCorrect:    config.MasteryStreakCorrect,
		StreakIncorrect:  config.MasteryStreakIncorrect,
		AppliedRetention: 256,
	}
	masteryService := services.NewMasteryService(masteryParams, store, logger, m)

	rules, err := services.LoadPreloadRules(config.PreloadRulesPath)
	if err != nil {
		logger.Startup().Warn("Preload rules unavailable, predictive preloading disabled",
			"path", config.PreloadRulesPath, "error", err.Error())
		rules = &services.PreloadRules{}
	}
	preloadService := services.NewPreloadService(rules, config.PreloadConfidence,
		config.PreloadFanoutCap, coordinator, sessionService, logger, m)

	warmingService := services.NewWarmingService(config.WarmingSubjects,
		config.WarmingConcurrency, coordinator, logger)

	return &Container{
		Logger:         logger,
		Metrics:        m,
		Registry:       registry,
		PerfTracker:    perfTracker,
		KVStore:        store,
		Cache:          cache,
		SessionStore:   sessionStore,
		Coordinator:    coordinator,
		Validator:      validator,
		SessionService: sessionService,
		ContentService: contentService,
		MasteryService: masteryService,
		PreloadService: preloadService,
		WarmingService: warmingService,
	}, nil
}

// newBackend selects the generation backend from config. Only the
// OpenAI-compatible backend is implemented today; the kind knob exists so a
// local model server can slot in without a config format change.
func newBackend(logger *logging.ChanneledLogger) (generation.Backend, error) {
	switch config.GenerationBackendKind {
	case "openai":
		return generation.NewOpenAIBackend(
			config.GenerationAPIKey, config.GenerationBaseURL, config.GenerationModel, logger), nil
	default:
		return nil, fmt.Errorf("container: unknown generation backend %q", config.GenerationBackendKind)
	}
}

// Close releases infrastructure resources.
func (c *Container) Close() error {
	start := time.Now()
	err := c.KVStore.Close()
	c.Logger.Shutdown().Info("Container closed", "duration", time.Since(start))
	return err
}
