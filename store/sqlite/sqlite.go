// Package sqlite implements core.SessionStore on SQLite using the pure Go
// modernc.org/sqlite driver. It conforms to the same contract as the postgres
// backend and is the zero-infrastructure option for local development and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    video_id TEXT,
    collection_id TEXT,
    name TEXT,
    is_public INTEGER DEFAULT 0,
    created_at INTEGER,
    updated_at INTEGER,
    metadata TEXT
);
CREATE TABLE IF NOT EXISTS conversations (
    session_id TEXT,
    conv_id TEXT,
    msg_id TEXT PRIMARY KEY,
    msg_type TEXT,
    agents TEXT,
    actions TEXT,
    content TEXT,
    status TEXT,
    created_at INTEGER,
    updated_at INTEGER,
    metadata TEXT,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
CREATE TABLE IF NOT EXISTS context_messages (
    session_id TEXT PRIMARY KEY,
    context_data TEXT,
    created_at INTEGER,
    updated_at INTEGER,
    metadata TEXT,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);`

// Store implements core.SessionStore backed by a SQLite database file.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral store.
func New(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Store{db: db, logger: logger}
	if err := s.initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
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
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", sessionID)
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

// UpsertMessage inserts or replaces a conversation message keyed by msg id,
// preserving created_at, session_id and conv_id from the first write.
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (msg_id) DO UPDATE SET
			msg_type = excluded.msg_type,
			agents = excluded.agents,
			actions = excluded.actions,
			content = excluded.content,
			status = excluded.status,
			updated_at = excluded.updated_at,
			metadata = excluded.metadata`,
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
// rowid breaks same-second ties so replay order stays deterministic.
func (s *Store) GetConversation(ctx context.Context, sessionID string) ([]*core.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, conv_id, msg_id, msg_type, agents, actions,
		       content, status, created_at, updated_at, metadata
		FROM conversations WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
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
		"SELECT context_data FROM context_messages WHERE session_id = ?", sessionID).Scan(&data)
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			context_data = excluded.context_data,
			updated_at = excluded.updated_at,
			metadata = excluded.metadata`,
		sessionID, marshalJSON(messages), now, now, marshalJSON(map[string]any{}),
	)
	if err != nil {
		s.logger.Error("store.upsert_context.failed", "session_id", sessionID, "error", err.Error())
		return fmt.Errorf("upsert context %s: %w", sessionID, err)
	}
	return nil
}

// UpdateSession applies the allowed fields and bumps updated_at.
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
		setClauses = append(setClauses, k+" = ?")
		args = append(args, v)
	}
	if len(setClauses) == 0 {
		return false, nil
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().Unix(), sessionID)

	query := fmt.Sprintf("UPDATE sessions SET %s WHERE session_id = ?", strings.Join(setClauses, ", "))
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
		"UPDATE sessions SET is_public = ?, updated_at = ? WHERE session_id = ?",
		isPublic, time.Now().Unix(), sessionID)
	if err != nil {
		s.logger.Error("store.set_public.failed", "session_id", sessionID, "error", err.Error())
		return false, fmt.Errorf("set public %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetPublicSession returns the session only if it is marked public.
func (s *Store) GetPublicSession(ctx context.Context, sessionID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ? AND is_public = 1", sessionID)
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
// session row. Success is true iff the session row was removed.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (*core.DeleteResult, error) {
	res := &core.DeleteResult{}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE session_id = ?", sessionID); err != nil {
		s.logger.Error("store.delete_conversation.failed", "session_id", sessionID, "error", err.Error())
		res.Failed = append(res.Failed, core.ComponentConversation)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM context_messages WHERE session_id = ?", sessionID); err != nil {
		s.logger.Error("store.delete_context.failed", "session_id", sessionID, "error", err.Error())
		res.Failed = append(res.Failed, core.ComponentContext)
	}

	delRes, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
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

// HealthCheck verifies the required tables exist, re-initializing the schema
// when any is missing.
func (s *Store) HealthCheck(ctx context.Context) bool {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(name) FROM sqlite_master
		WHERE type = 'table'
		AND name IN ('sessions', 'conversations', 'context_messages')`).Scan(&count)
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

func unmarshalJSON(data []byte, dst any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, dst)
}
