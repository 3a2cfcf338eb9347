package kv

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	k          TEXT PRIMARY KEY,
	v          BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_entries(expires_at);
`

// SQLStore is the durable tier backed by sqlite3 or libsql through
// database/sql.
type SQLStore struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStore opens the store and ensures its schema exists.
func NewSQLStore(driverName, dataSourceName string, logger *logging.ChanneledLogger) (*SQLStore, error) {
	db, err := database.NewConnectionWithLogger(driverName, dataSourceName, logger)
	if err != nil {
		return nil, fmt.Errorf("kv: open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create schema: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// Get returns the stored value for key, expired or not.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv_entries WHERE k = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return value, nil
}

// Put upserts the value for key. A zero expiresAt means the row never
// expires.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.UTC().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (k, v, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, exp, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Missing keys are not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE k = ?`, key); err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Scan visits every row whose key starts with prefix, in key order.
func (s *SQLStore) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	// LIKE special characters in prefixes are escaped so a literal prefix
	// scan stays a literal prefix scan.
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT k, v FROM kv_entries WHERE k LIKE ? ESCAPE '\' ORDER BY k`, escaped+"%")
	if err != nil {
		return fmt.Errorf("kv: scan %s: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("kv: scan %s: %w", prefix, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteExpired reclaims rows whose expiry passed before now.
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at > 0 AND expires_at < ?`, now.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("kv: delete expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
