// Package postgres implements core.SessionStore on PostgreSQL using
// database/sql with the lib/pq driver. Upserts rely on ON CONFLICT so
// concurrent writers of the same key serialize inside the database, and every
// store call is its own statement-level transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/logging"
)

// Schema for the three logical tables backing the session store.
const (
	createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    video_id TEXT,
    collection_id TEXT,
    name TEXT,
    is_public BOOLEAN DEFAULT FALSE,
    created_at BIGINT,
    updated_at BIGINT,
    metadata JSONB
);`

	createConversationsTable = `
CREATE TABLE IF NOT EXISTS conversations (
    session_id TEXT,
    conv_id TEXT,
    msg_id TEXT PRIMARY KEY,
    msg_type TEXT,
    agents JSONB,
    actions JSONB,
    content JSONB,
    status TEXT,
    created_at BIGINT,
    updated_at BIGINT,
    metadata JSONB,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);`

	createContextMessagesTable = `
CREATE TABLE IF NOT EXISTS context_messages (
    session_id TEXT PRIMARY KEY,
    context_data JSONB,
    created_at BIGINT,
    updated_at BIGINT,
    metadata JSONB,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);`
)

// Config holds connection settings for the PostgreSQL session store.
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	Logger          logging.Logger
}

// DefaultConfig returns baseline settings for a local PostgreSQL instance.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		Database:        "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// ConfigFromEnv builds a Config from POSTGRES_* environment variables,
// falling back to DefaultConfig values for anything unset.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database = v
	}
	return cfg
}

// Store implements core.SessionStore backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New opens a pooled connection, verifies reachability and ensures the schema
// exists.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Store{db: db, logger: logger}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an existing database handle. The caller keeps ownership of
// the handle's lifecycle.
func NewFromDB(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Store{db: db, logger: logger}
	if err := s.initialize(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying database connection for related stores.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// initialize creates the required tables when missing.
func (s *Store) initialize(ctx context.Context) error {
	for _, stmt := range []string{createSessionsTable, createConversationsTable, createContextMessagesTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new session row; an existing id is a silent no-op.
func (s *Store) CreateSession(ctx context.Context, session *core.Session) error {
	now := time.Now().Unix()
	createdAt := session.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	updatedAt := session.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, video_id, collection_id, name, is_public, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO NOTHING`,
		session.ID, session.VideoID, session.CollectionID, session.Name,
		session.IsPublic, createdAt, updatedAt, marshalJSON(session.Metadata),
	)
	if err != nil {
		s.logger.Error("store.create_session.failed", "session_id", session.ID, "error", err.Error())
		return fmt.Errorf("create session %s: %w", session.ID, err)
	}
	return nil
}

const sessionColumns = "session_id, video_id, collection_id, name, is_public, created_at, updated_at, metadata"

// GetSession returns the session row or (nil, nil) when not found.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = $1", sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("store.get_session.failed", "session_id", sessionID, "error", err.Error())
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		s.logger.Error("store.list_sessions.failed", "error", err.Error())
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpsertMessage inserts or replaces a conversation message keyed by msg id.
// The conflict clause re-asserts every mutable field from the incoming write
// while created_at, session_id and conv_id keep their first-write values.
func (s *Store) UpsertMessage(ctx context.Context, msg *core.ConversationMessage) error {
	now := time.Now().Unix()
	createdAt := msg.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	updatedAt := msg.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			session_id, conv_id, msg_id, msg_type, agents, actions,
			content, status, created_at, updated_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (msg_id) DO UPDATE SET
			msg_type = EXCLUDED.msg_type,
			agents = EXCLUDED.agents,
			actions = EXCLUDED.actions,
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			metadata = EXCLUDED.metadata`,
		msg.SessionID, msg.ConvID, msg.MsgID, string(msg.MsgType),
		marshalJSON(msg.Agents), marshalJSON(msg.Actions), marshalJSON(msg.Content),
		string(msg.Status), createdAt, updatedAt, marshalJSON(msg.Metadata),
	)
	if err != nil {
		s.logger.Error("store.upsert_message.failed", "msg_id", msg.MsgID, "error", err.Error())
		return fmt.Errorf("upsert message %s: %w", msg.MsgID, err)
	}
	return nil
}

// GetConversation returns the session's messages ascending by created_at.
func (s *Store) GetConversation(ctx context.Context, sessionID string) ([]*core.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, conv_id, msg_id, msg_type, agents, actions,
		       content, status, created_at, updated_at, metadata
		FROM conversations WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		s.logger.Error("store.get_conversation.failed", "session_id", sessionID, "error", err.Error())
		return nil, fmt.Errorf("get conversation %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*core.ConversationMessage
	for rows.Next() {
		var (
			m                                  core.ConversationMessage
			msgType, status                    string
			agents, actions, content, metadata []byte
		)
		if err := rows.Scan(&m.SessionID, &m.ConvID, &m.MsgID, &msgType, &agents,
			&actions, &content, &status, &m.CreatedAt, &m.UpdatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("get conversation %s: %w", sessionID, err)
		}
		m.MsgType = core.MsgType(msgType)
		m.Status = core.MsgStatus(status)
		unmarshalJSON(agents, &m.Agents)
		unmarshalJSON(actions, &m.Actions)
		unmarshalJSON(content, &m.Content)
		unmarshalJSON(metadata, &m.Metadata)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetContext returns the rolling context or (nil, nil) when absent.
func (s *Store) GetContext(ctx context.Context, sessionID string) ([]core.ChatMessage, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT context_data FROM context_messages WHERE session_id = $1", sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("store.get_context.failed", "session_id", sessionID, "error", err.Error())
		return nil, fmt.Errorf("get context %s: %w", sessionID, err)
	}
	var messages []core.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("get context %s: decode context_data: %w", sessionID, err)
	}
	return messages, nil
}

// UpsertContext fully replaces the session's context payload.
func (s *Store) UpsertContext(ctx context.Context, sessionID string, messages []core.ChatMessage) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_messages (session_id, context_data, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			context_data = EXCLUDED.context_data,
			updated_at = EXCLUDED.updated_at,
			metadata = EXCLUDED.metadata`,
		sessionID, marshalJSON(messages), now, now, marshalJSON(map[string]any{}),
	)
	if err != nil {
		s.logger.Error("store.upsert_context.failed", "session_id", sessionID, "error", err.Error())
		return fmt.Errorf("upsert context %s: %w", sessionID, err)
	}
	return nil
}

// UpdateSession applies the allowed fields and bumps updated_at. Unknown
// fields are dropped; an update map with no valid fields returns false
// without a round trip.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, fields map[string]any) (bool, error) {
	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for k, v := range fields {
		if !core.MutableSessionFields[k] {
			continue
		}
		if k == "metadata" {
			v = marshalJSON(v)
		}
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	if len(setClauses) == 0 {
		return false, nil
	}
	args = append(args, time.Now().Unix())
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, sessionID)

	query := fmt.Sprintf("UPDATE sessions SET %s WHERE session_id = $%d",
		strings.Join(setClauses, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("store.update_session.failed", "session_id", sessionID, "error", err.Error())
		return false, fmt.Errorf("update session %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPublic toggles the session's public flag.
func (s *Store) SetPublic(ctx context.Context, sessionID string, isPublic bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET is_public = $1, updated_at = $2 WHERE session_id = $3",
		isPublic, time.Now().Unix(), sessionID)
	if err != nil {
		s.logger.Error("store.set_public.failed", "session_id", sessionID, "error", err.Error())
		return false, fmt.Errorf("set public %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetPublicSession returns the session only if it is marked public; private
// sessions fail closed as not-found.
func (s *Store) GetPublicSession(ctx context.Context, sessionID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = $1 AND is_public = TRUE", sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("store.get_public_session.failed", "session_id", sessionID, "error", err.Error())
		return nil, fmt.Errorf("get public session %s: %w", sessionID, err)
	}
	return sess, nil
}

// DeleteSession removes conversation messages, then context, then the
// session row. Success is true iff the session row was removed; dependent
// deletes that touched zero rows are not failures, only statement errors are.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (*core.DeleteResult, error) {
	res := &core.DeleteResult{}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE session_id = $1", sessionID); err != nil {
		s.logger.Error("store.delete_conversation.failed", "session_id", sessionID, "error", err.Error())
		res.Failed = append(res.Failed, core.ComponentConversation)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM context_messages WHERE session_id = $1", sessionID); err != nil {
		s.logger.Error("store.delete_context.failed", "session_id", sessionID, "error", err.Error())
		res.Failed = append(res.Failed, core.ComponentContext)
	}

	delRes, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = $1", sessionID)
	if err != nil {
		s.logger.Error("store.delete_session.failed", "session_id", sessionID, "error", err.Error())
		res.Failed = append(res.Failed, core.ComponentSession)
		return res, nil
	}
	if n, _ := delRes.RowsAffected(); n > 0 {
		res.Success = true
	} else {
		res.Failed = append(res.Failed, core.ComponentSession)
	}
	return res, nil
}

// HealthCheck verifies the three required tables exist, re-initializing the
// schema when any is missing. False is returned only when the probe or the
// re-initialization fails.
func (s *Store) HealthCheck(ctx context.Context) bool {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(table_name)
		FROM information_schema.tables
		WHERE table_name IN ('sessions', 'conversations', 'context_messages')
		AND table_schema = 'public'`).Scan(&count)
	if err != nil {
		s.logger.Error("store.health_check.failed", "error", err.Error())
		return false
	}
	if count < 3 {
		s.logger.Info("store.health_check.initializing", "tables_found", count)
		if err := s.initialize(ctx); err != nil {
			s.logger.Error("store.health_check.init_failed", "error", err.Error())
			return false
		}
	}
	return true
}

// scanner abstracts *sql.Row and *sql.Rows for shared session scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.Session, error) {
	var (
		sess                        core.Session
		videoID, collectionID, name sql.NullString
		metadata                    []byte
	)
	if err := row.Scan(&sess.ID, &videoID, &collectionID, &name, &sess.IsPublic,
		&sess.CreatedAt, &sess.UpdatedAt, &metadata); err != nil {
		return nil, err
	}
	sess.VideoID = videoID.String
	sess.CollectionID = collectionID.String
	sess.Name = name.String
	unmarshalJSON(metadata, &sess.Metadata)
	return &sess, nil
}

// marshalJSON serializes v, falling back to an empty JSON object so NOT NULL
// style consumers never see invalid payloads.
func marshalJSON(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// unmarshalJSON decodes into dst ignoring empty payloads and decode errors;
// a corrupt optional column should not fail a whole row read.
func unmarshalJSON(data []byte, dst any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, dst)
}
