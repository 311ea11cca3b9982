package core

import "time"

// MsgType distinguishes inbound user turns from outbound assistant turns.
type MsgType string

// Conversation message directions.
const (
	MsgTypeInput  MsgType = "input"
	MsgTypeOutput MsgType = "output"
)

// MsgStatus tracks the lifecycle of a conversation message. Streaming turns
// move progress -> success/error via repeated upserts of the same msg id.
type MsgStatus string

// Conversation message statuses.
const (
	MsgStatusProgress MsgStatus = "progress"
	MsgStatusSuccess  MsgStatus = "success"
	MsgStatusError    MsgStatus = "error"
)

// Session is a persistent conversation thread tied to one resource context
// (e.g. a video within a collection). Timestamps are unix seconds. Sessions
// are private unless explicitly published.
type Session struct {
	ID           string         `json:"session_id"`
	VideoID      string         `json:"video_id,omitempty"`
	CollectionID string         `json:"collection_id,omitempty"`
	Name         string         `json:"name,omitempty"`
	IsPublic     bool           `json:"is_public"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewSession constructs a session with call-time timestamps and an empty
// metadata map.
func NewSession(id string) *Session {
	now := time.Now().Unix()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now, Metadata: map[string]any{}}
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}

// ConversationMessage is one logged turn of a session. MsgID is stable across
// rewrites: upserting an existing id replaces the mutable fields while
// CreatedAt, SessionID and ConvID keep their first-write values, which is how
// streaming agents publish incremental updates to a single logical message.
type ConversationMessage struct {
	MsgID     string         `json:"msg_id"`
	SessionID string         `json:"session_id"`
	ConvID    string         `json:"conv_id"`
	MsgType   MsgType        `json:"msg_type"`
	Agents    []string       `json:"agents"`
	Actions   []string       `json:"actions"`
	Content   []ContentBlock `json:"content"`
	Status    MsgStatus      `json:"status,omitempty"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ContextMessage is the rolling prompt snapshot for a session: exactly one
// record per session id, fully replaced on every write. It is owned by the
// session and removed with it.
type ContextMessage struct {
	SessionID string         `json:"session_id"`
	Messages  []ChatMessage  `json:"context_data"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
