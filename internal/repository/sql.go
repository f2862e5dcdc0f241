package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/xiaot623/gogo/convstore/internal/domain"
)

// PoolOptions tunes the shared connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore implements Store on top of database/sql. The schema must already
// exist; see Migrate.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects to the database for the given driver and DSN and verifies
// the connection.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolOptions) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dialect {
	case DialectSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// For in-memory SQLite, multiple connections create separate databases.
		// Keep a single connection to avoid schema/data disappearing across goroutines.
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			pool.MaxOpenConns = 1
			pool.MaxIdleConns = 1
		}
	case DialectMySQL:
		cfg, perr := mysql.ParseDSN(dsn)
		if perr != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", perr)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		db, err = sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dialect)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// sqliteDSN turns on foreign keys and a busy timeout for every pooled
// connection rather than only the first one.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk=") {
		params = append(params, "_foreign_keys=1")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, user_id, agent_id, name, platform, metadata, created_at, updated_at, run_finished_at`

// CreateSession creates a new session.
func (s *SQLStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	stampSession(session, s.now())
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, nullString(session.UserID), nullString(session.AgentID), nullString(session.Name),
		session.Platform, string(metadata), session.CreatedAt, session.UpdatedAt, nullTime(session.RunFinishedAt))
	if err != nil {
		return s.classify(err, "failed to create session", session)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(sessionID)
	}
	if err != nil {
		return nil, s.classify(err, "failed to get session", nil)
	}
	return session, nil
}

// GetSessionByName retrieves a session by its unique name.
func (s *SQLStore) GetSessionByName(ctx context.Context, name string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE name = ?`, name)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: name %q", domain.ErrSessionNotFound, name)
	}
	if err != nil {
		return nil, s.classify(err, "failed to get session by name", nil)
	}
	return session, nil
}

// ListSessions returns sessions ordered by most recent activity.
func (s *SQLStore) ListSessions(ctx context.Context, opts domain.ListSessionsOptions) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	args := []interface{}{}

	if opts.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, opts.AgentID)
	}
	query += ` ORDER BY updated_at DESC, id ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify(err, "failed to list sessions", nil)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, s.classify(err, "failed to scan session", nil)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err, "failed to list sessions", nil)
	}
	return sessions, nil
}

// SessionExists reports whether a session with the given id exists.
func (s *SQLStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, sessionID).Scan(&exists)
	if err != nil {
		return false, s.classify(err, "failed to check session", nil)
	}
	return exists, nil
}

// BindSessionAgent sets the session's agent when it is unset. Binding to the
// agent already set is a no-op; binding to any other agent fails.
func (s *SQLStore) BindSessionAgent(ctx context.Context, sessionID, agentID string) error {
	if agentID == "" {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET agent_id = ?, updated_at = ? WHERE id = ? AND agent_id IS NULL`,
		agentID, s.now(), sessionID)
	if err != nil {
		return s.classify(err, "failed to bind session agent", nil)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	current, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.AgentID != agentID {
		return domain.AgentConflictError(sessionID, current.AgentID, agentID)
	}
	return nil
}

// UpdateSessionMetadata replaces the session's metadata map.
func (s *SQLStore) UpdateSessionMetadata(ctx context.Context, sessionID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(data), s.now(), sessionID)
	if err != nil {
		return s.classify(err, "failed to update session metadata", nil)
	}
	return s.requireAffected(ctx, res, sessionID)
}

// TouchRunFinished advances run_finished_at. Older timestamps are ignored.
func (s *SQLStore) TouchRunFinished(ctx context.Context, sessionID string, at time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err, "failed to begin tx", nil)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var current sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT run_finished_at FROM sessions WHERE id = ?`, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(sessionID)
	}
	if err != nil {
		return s.classify(err, "failed to read run_finished_at", nil)
	}

	next := at
	if current.Valid && !current.Time.Before(at) {
		next = current.Time
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET run_finished_at = ?, updated_at = ? WHERE id = ?`,
		next, s.now(), sessionID); err != nil {
		return s.classify(err, "failed to update run_finished_at", nil)
	}
	if err = tx.Commit(); err != nil {
		return s.classify(err, "failed to commit run_finished_at", nil)
	}
	return nil
}

// DeleteSession removes a session and all of its messages.
func (s *SQLStore) DeleteSession(ctx context.Context, sessionID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err, "failed to begin tx", nil)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return s.classify(err, "failed to delete messages", nil)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return s.classify(err, "failed to delete session", nil)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return s.classify(err, "failed to read rows affected", nil)
	}
	if affected == 0 {
		err = notFound(sessionID)
		return err
	}
	if err = tx.Commit(); err != nil {
		return s.classify(err, "failed to commit delete session", nil)
	}
	return nil
}

// CreateMessage inserts a message and touches its session.
func (s *SQLStore) CreateMessage(ctx context.Context, message *domain.Message) (err error) {
	now := s.now()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	if message.UpdatedAt.IsZero() {
		message.UpdatedAt = message.CreatedAt
	}
	toolCalls, err := marshalNullable(message.ToolCalls, len(message.ToolCalls) > 0)
	if err != nil {
		return fmt.Errorf("failed to marshal tool calls: %w", err)
	}
	toolOutputs, err := marshalNullable(message.ToolOutputs, len(message.ToolOutputs) > 0)
	if err != nil {
		return fmt.Errorf("failed to marshal tool outputs: %w", err)
	}
	msgContext, err := marshalNullable(message.Context, len(message.Context) > 0)
	if err != nil {
		return fmt.Errorf("failed to marshal message context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err, "failed to begin tx", nil)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, user_id, agent_id, role, text_content, tool_calls, tool_outputs, context, system_prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, nullString(message.UserID), nullString(message.AgentID),
		string(message.Role), message.TextContent, toolCalls, toolOutputs, msgContext,
		nullString(message.SystemPrompt), message.CreatedAt, message.UpdatedAt)
	if err != nil {
		return s.classify(err, "failed to create message", &domain.Session{ID: message.SessionID})
	}
	if seq, serr := res.LastInsertId(); serr == nil {
		message.Seq = seq
	}
	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, message.SessionID); err != nil {
		return s.classify(err, "failed to touch session", nil)
	}
	if err = tx.Commit(); err != nil {
		return s.classify(err, "failed to commit message", nil)
	}
	return nil
}

// ListMessages returns a session's messages ordered by created_at, then by
// insertion sequence.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, session_id, user_id, agent_id, role, text_content, tool_calls, tool_outputs, context, system_prompt, created_at, updated_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, s.classify(err, "failed to list messages", nil)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var userID, agentID, toolCalls, toolOutputs, msgContext, systemPrompt sql.NullString
		var role string
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.SessionID, &userID, &agentID, &role, &msg.TextContent,
			&toolCalls, &toolOutputs, &msgContext, &systemPrompt, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, s.classify(err, "failed to scan message", nil)
		}
		msg.Role = domain.Role(role)
		msg.UserID = userID.String
		msg.AgentID = agentID.String
		msg.SystemPrompt = systemPrompt.String
		// Corrupt JSON columns read as empty.
		if toolCalls.Valid {
			_ = json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls)
		}
		if toolOutputs.Valid {
			_ = json.Unmarshal([]byte(toolOutputs.String), &msg.ToolOutputs)
		}
		if msgContext.Valid {
			_ = json.Unmarshal([]byte(msgContext.String), &msg.Context)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err, "failed to list messages", nil)
	}
	return messages, nil
}

// DeleteMessages removes all messages of a session; the session itself stays.
func (s *SQLStore) DeleteMessages(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, s.classify(err, "failed to delete messages", nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.classify(err, "failed to read rows affected", nil)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, s.now(), sessionID); err != nil {
		return n, s.classify(err, "failed to touch session", nil)
	}
	return n, nil
}

func (s *SQLStore) requireAffected(ctx context.Context, res sql.Result, sessionID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return s.classify(err, "failed to read rows affected", nil)
	}
	if affected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when nothing changed.
	exists, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(sessionID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var userID, agentID, name sql.NullString
	var metadata sql.NullString
	var runFinished sql.NullTime
	if err := row.Scan(&session.ID, &userID, &agentID, &name, &session.Platform, &metadata,
		&session.CreatedAt, &session.UpdatedAt, &runFinished); err != nil {
		return nil, err
	}
	session.UserID = userID.String
	session.AgentID = agentID.String
	session.Name = name.String
	session.Metadata = map[string]any{}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &session.Metadata)
	}
	if runFinished.Valid {
		t := runFinished.Time.UTC()
		session.RunFinishedAt = &t
	}
	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
