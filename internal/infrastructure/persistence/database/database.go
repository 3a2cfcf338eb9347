// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner. Local deployments use
// the sqlite3 driver; hosted deployments can point DB_DRIVER at libsql.
package database

import (
	"database/sql"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// SlowQueryThreshold flags connections and statements that take longer than
// expected for an embedded store.
const SlowQueryThreshold = 50 * time.Millisecond

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// NewConnectionWithLogger establishes a new database connection for the
// specified driver with logging.
func NewConnectionWithLogger(driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	if err = db.Ping(); err != nil {
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	if duration > SlowQueryThreshold {
		logger.Database().Warn("Slow database connection", "driverName", driverName, "duration", duration)
	}

	return &DB{db}, nil
}
