// Package config provides centralized default values for the content
// pipeline. Every knob reads its value from the environment once at init,
// logging any override of the shipped default.
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%f (default: %f)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port                  string
	ServerReadTimeout     time.Duration
	ServerWriteTimeout    time.Duration
	ServerIdleTimeout     time.Duration
	ServerShutdownTimeout time.Duration

	// Durable Store
	DBDriver string
	DBPath   string

	// Content Cache
	HotCacheCapacityMB   int
	HotCacheMaxEntries   int
	HotCacheTTL          time.Duration
	WarmCacheTTL         time.Duration
	StaleRetention       time.Duration
	CacheCleanupInterval time.Duration

	// Generation Coordinator
	GenerationWorkers     int
	GenerationMaxAttempts int
	GenerationBackoffBase time.Duration
	GenerationBackoffMax  time.Duration
	InteractiveBudget     time.Duration
	InteractiveBudgetMax  time.Duration

	// Generation Backend
	GenerationBackendKind string
	GenerationModel       string
	GenerationBaseURL     string
	GenerationAPIKey      string

	// Predictive Preloader
	PreloadRulesPath   string
	PreloadConfidence  float64
	PreloadFanoutCap   int
	WarmingSubjects    []string
	WarmingConcurrency int

	// Sessions
	SessionTTL time.Duration

	// Mastery
	MasteryK               float64
	MasteryScale           float64
	MasteryInitial         float64
	MasteryWindowSize      int
	MasteryStreakCorrect   int
	MasteryStreakIncorrect int

	// Logging
	LogJSON    bool
	LogToFile  bool
	LogDir     string
	LogVerbose bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	ServerShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)

	// Durable Store
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "lessonforge.db")

	// Content Cache
	HotCacheCapacityMB = getEnvInt("HOT_CACHE_CAPACITY_MB", 64)
	HotCacheMaxEntries = getEnvInt("HOT_CACHE_MAX_ENTRIES", 10000)
	HotCacheTTL = getEnvDuration("HOT_CACHE_TTL", 15*time.Minute)
	WarmCacheTTL = getEnvDuration("WARM_CACHE_TTL", 24*time.Hour)
	StaleRetention = getEnvDuration("STALE_RETENTION", 30*time.Minute)
	CacheCleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute)

	// Generation Coordinator
	GenerationWorkers = getEnvInt("GENERATION_WORKERS", 3)
	GenerationMaxAttempts = getEnvInt("GENERATION_MAX_ATTEMPTS", 3)
	GenerationBackoffBase = getEnvDuration("GENERATION_BACKOFF_BASE", 500*time.Millisecond)
	GenerationBackoffMax = getEnvDuration("GENERATION_BACKOFF_MAX", 10*time.Second)
	InteractiveBudget = getEnvDuration("INTERACTIVE_BUDGET", 2*time.Second)
	InteractiveBudgetMax = getEnvDuration("INTERACTIVE_BUDGET_MAX", 15*time.Second)

	// Generation Backend
	GenerationBackendKind = getEnvString("GENERATION_BACKEND", "openai")
	GenerationModel = getEnvString("GENERATION_MODEL", "gpt-4o-mini")
	GenerationBaseURL = getEnvString("GENERATION_BASE_URL", "")
	GenerationAPIKey = getEnvString("GENERATION_API_KEY", "")

	// Predictive Preloader
	PreloadRulesPath = getEnvString("PRELOAD_RULES_PATH", "config/preload_rules.yaml")
	PreloadConfidence = getEnvFloat("PRELOAD_CONFIDENCE_THRESHOLD", 0.6)
	PreloadFanoutCap = getEnvInt("PRELOAD_FANOUT_CAP", 5)
	WarmingSubjects = strings.Split(getEnvString("WARMING_SUBJECTS", "math,science"), ",")
	WarmingConcurrency = getEnvInt("WARMING_CONCURRENCY", 2)

	// Sessions
	SessionTTL = getEnvDuration("SESSION_TTL", 4*time.Hour)

	// Mastery
	MasteryK = getEnvFloat("MASTERY_K", 16)
	MasteryScale = getEnvFloat("MASTERY_SCALE", 20)
	MasteryInitial = getEnvFloat("MASTERY_INITIAL", 50)
	MasteryWindowSize = getEnvInt("MASTERY_WINDOW_SIZE", 5)
	MasteryStreakCorrect = getEnvInt("MASTERY_STREAK_CORRECT", 3)
	MasteryStreakIncorrect = getEnvInt("MASTERY_STREAK_INCORRECT", 2)

	// Logging
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDir = getEnvString("LOG_DIR", "logs")
	LogVerbose = getEnvBool("LOG_VERBOSE", false)
}
