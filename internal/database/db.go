package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "core_view.db"

// DB wraps the SQLite handle with its prepared statements.
type DB struct {
	*sql.DB
	pool     PoolConfig
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// PoolConfig bounds the connection pool. SQLite serializes writers, so a
// small pool is enough.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpen: 8, MaxIdle: 4, MaxLifetime: 5 * time.Minute}
}

func (p PoolConfig) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetConnMaxLifetime(p.MaxLifetime)
}

// migrations are applied in order; PRAGMA user_version records how many ran.
// Append only.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			current_step TEXT NOT NULL,
			accumulator TEXT NOT NULL, -- JSON {dimension: {sum, count}}
			responses TEXT NOT NULL, -- JSON array of response events
			profile TEXT, -- JSON profile once computed
			profile_v1 TEXT, -- profile before the first adjustment
			deep_dive_adjustments TEXT,
			reconciliation_adjustments TEXT,
			feedback_token TEXT UNIQUE,
			feedback_active BOOLEAN NOT NULL DEFAULT FALSE,
			share_token TEXT UNIQUE,
			started_at DATETIME NOT NULL,
			last_active_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_submissions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			responses TEXT NOT NULL, -- JSON array of {questionId, optionId}
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback_submissions(session_id, created_at)`,
	},
}

var statements = map[string]string{
	stmtInsertSession: `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	stmtInsertFeedback: `INSERT INTO feedback_submissions (id, session_id, responses, created_at)
		VALUES (?, ?, ?, ?)`,

	stmtListFeedback: `SELECT responses FROM feedback_submissions
		WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
}

// NewDB opens (creating if needed) the session database under dataDir.
//
// Transactions start with BEGIN IMMEDIATE so a read-modify-write of one
// session holds the write lock from its first read; concurrent updates of the
// same session are applied one after another.
func NewDB(dataDir string) (*DB, error) {
	return Open(dataDir, DefaultPoolConfig())
}

// Open is NewDB with explicit pool limits.
func Open(dataDir string, pool PoolConfig) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dbPath)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	pool.apply(sqlDB)

	db := &DB{DB: sqlDB, pool: pool, prepared: make(map[string]*sql.Stmt, len(statements))}

	version, err := db.migrate()
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := db.prepare(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"schema_version", version,
		"max_open_conns", pool.MaxOpen)
	return db, nil
}

// SchemaVersion reports how many migrations have been applied.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (db *DB) migrate() (int, error) {
	current, err := db.SchemaVersion()
	if err != nil {
		return 0, err
	}
	if current > len(migrations) {
		return 0, fmt.Errorf("schema version %d is newer than this binary (%d)", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return v, err
		}
		for _, q := range migrations[v] {
			if _, err := tx.Exec(q); err != nil {
				tx.Rollback()
				return v, fmt.Errorf("migration %d: %w", v+1, err)
			}
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			tx.Rollback()
			return v, err
		}
		if err := tx.Commit(); err != nil {
			return v, err
		}
		slog.Debug("Applied migration", "version", v+1)
	}
	return len(migrations), nil
}

func (db *DB) prepare() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}
	return nil
}

// GetPreparedStatement retrieves a prepared statement by name.
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, ok := db.prepared[name]
	if !ok {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// GetPoolStats reports connection usage for the health endpoint.
func (db *DB) GetPoolStats() map[string]any {
	s := db.Stats()
	return map[string]any{
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"max_open_connections": db.pool.MaxOpen,
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
	}
}

// Close closes the prepared statements and the connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	clear(db.prepared)
	return db.DB.Close()
}
