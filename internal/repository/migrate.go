package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

// ParseDialect normalizes a driver name.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		agent_id TEXT,
		name TEXT UNIQUE,
		platform TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		run_finished_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		user_id TEXT,
		agent_id TEXT,
		role TEXT NOT NULL,
		text_content TEXT NOT NULL,
		tool_calls TEXT,
		tool_outputs TEXT,
		context TEXT,
		system_prompt TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq)`,
}

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(64) NOT NULL,
		user_id VARCHAR(255) NULL,
		agent_id VARCHAR(255) NULL,
		name VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NULL,
		platform VARCHAR(255) NOT NULL DEFAULT '',
		metadata JSON NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		run_finished_at DATETIME(6) NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_sessions_name (name),
		INDEX idx_sessions_agent (agent_id),
		INDEX idx_sessions_user (user_id),
		INDEX idx_sessions_updated_at (updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		id VARCHAR(64) NOT NULL,
		session_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(255) NULL,
		agent_id VARCHAR(255) NULL,
		role VARCHAR(32) NOT NULL,
		text_content MEDIUMTEXT NOT NULL,
		tool_calls JSON NULL,
		tool_outputs JSON NULL,
		context JSON NULL,
		system_prompt MEDIUMTEXT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		PRIMARY KEY (seq),
		UNIQUE KEY uniq_messages_id (id),
		INDEX idx_messages_session (session_id, created_at, seq),
		CONSTRAINT fk_messages_session FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	// Session names compare byte for byte, as on SQLite; tables created
	// with the default case-insensitive collation are converted in place.
	`ALTER TABLE sessions MODIFY name VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NULL`,
}

// Migrate ensures the sessions and messages tables exist. It is idempotent
// and meant to run once per deployment, never from store construction.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case DialectSQLite:
		stmts = sqliteMigrations
	case DialectMySQL:
		stmts = mysqlMigrations
	default:
		return fmt.Errorf("unsupported driver for migration: %s", dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", dialect, err)
		}
	}
	return nil
}
