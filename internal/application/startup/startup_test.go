package startup

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/lessonforge-go/pkg/config"
)

func TestLoggerConfigHonorsLoggingKnobs(t *testing.T) {
	restoreJSON, restoreFile, restoreDir, restoreVerbose :=
		config.LogJSON, config.LogToFile, config.LogDir, config.LogVerbose
	defer func() {
		config.LogJSON, config.LogToFile, config.LogDir, config.LogVerbose =
			restoreJSON, restoreFile, restoreDir, restoreVerbose
	}()

	config.LogJSON = false
	config.LogToFile = true
	config.LogDir = "/var/log/lessonforge"
	config.LogVerbose = true

	cfg := loggerConfig()
	assert.False(t, cfg.JSONFormat)
	assert.True(t, cfg.OutputToFile)
	assert.Equal(t, "/var/log/lessonforge", cfg.LogDirectory)
	assert.Equal(t, slog.LevelDebug, cfg.DefaultLevel)

	config.LogVerbose = false
	assert.Equal(t, slog.LevelInfo, loggerConfig().DefaultLevel)
}
