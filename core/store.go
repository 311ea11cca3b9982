package core

import "context"

// Deletable components reported by SessionStore.DeleteSession.
const (
	ComponentSession      = "session"
	ComponentConversation = "conversation"
	ComponentContext      = "context"
)

// MutableSessionFields enumerates the session attributes UpdateSession will
// accept. Anything else in the update map is silently ignored.
var MutableSessionFields = map[string]bool{
	"name":          true,
	"video_id":      true,
	"collection_id": true,
	"metadata":      true,
}

// DeleteResult reports the outcome of a cascading session delete. Success is
// true iff the session row itself was removed; conversation or context
// components that had no rows to delete are not counted as failures.
type DeleteResult struct {
	Success bool     `json:"success"`
	Failed  []string `json:"failed_components,omitempty"`
}

// SessionStore persists sessions, their ordered conversation history and the
// per-session rolling context.
//
// Contract:
//   - Every write is a single transactional unit; no cross-call transactions.
//   - Point lookups return (nil, nil) when the target is absent, never an
//     error.
//   - Concurrent UpsertMessage calls for the same msg id serialize at the
//     storage layer with the later commit winning.
type SessionStore interface {
	// CreateSession inserts a new session. Re-creating an existing id is a
	// silent no-op preserving the original row.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns the session or (nil, nil) when not found.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessions returns all sessions ordered by updated_at descending.
	ListSessions(ctx context.Context) ([]*Session, error)

	// UpsertMessage inserts or replaces a conversation message keyed by msg
	// id. On replace, CreatedAt plus the first-write SessionID/ConvID are
	// preserved; every other field is re-asserted from the incoming message.
	UpsertMessage(ctx context.Context, msg *ConversationMessage) error

	// GetConversation returns the session's messages ascending by created_at.
	GetConversation(ctx context.Context, sessionID string) ([]*ConversationMessage, error)

	// GetContext returns the session's rolling context or (nil, nil) when no
	// context has been written yet.
	GetContext(ctx context.Context, sessionID string) ([]ChatMessage, error)

	// UpsertContext fully replaces the session's context (last writer wins,
	// no merge). CreatedAt is set once on first write.
	UpsertContext(ctx context.Context, sessionID string, messages []ChatMessage) error

	// UpdateSession applies the subset of fields named in
	// MutableSessionFields, ignoring anything else, and bumps updated_at.
	// It returns false without touching storage when no valid field is
	// supplied, and false when the session does not exist.
	UpdateSession(ctx context.Context, sessionID string, fields map[string]any) (bool, error)

	// SetPublic toggles the session's public flag.
	SetPublic(ctx context.Context, sessionID string, isPublic bool) (bool, error)

	// GetPublicSession returns the session only if it is marked public.
	// Private and absent sessions are indistinguishable: both yield
	// (nil, nil). This is an authorization boundary and fails closed.
	GetPublicSession(ctx context.Context, sessionID string) (*Session, error)

	// DeleteSession removes conversation messages, context and the session
	// row, reporting which components failed.
	DeleteSession(ctx context.Context, sessionID string) (*DeleteResult, error)

	// HealthCheck verifies the backing schema exists, self-initializing it
	// when missing. It returns false only on an unrecoverable storage error.
	HealthCheck(ctx context.Context) bool
}
