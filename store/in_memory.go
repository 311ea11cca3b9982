package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studioloop/maestro/core"
)

// InMemoryStore is a volatile core.SessionStore implementation keeping all
// state in process-local maps. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Returned entities are cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	messages map[string]*storedMessage // keyed by msg id
	contexts map[string]*core.ContextMessage
	seq      int64
}

// storedMessage pairs a conversation message with an insertion sequence used
// to break created_at ties deterministically.
type storedMessage struct {
	msg *core.ConversationMessage
	seq int64
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		messages: make(map[string]*storedMessage),
		contexts: make(map[string]*core.ContextMessage),
	}
}

// CreateSession inserts the session unless the id already exists (conflict
// free create: the original row and its created_at stand).
func (s *InMemoryStore) CreateSession(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return nil
	}
	cp := session.Clone()
	now := time.Now().Unix()
	if cp.CreatedAt == 0 {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt == 0 {
		cp.UpdatedAt = now
	}
	if cp.Metadata == nil {
		cp.Metadata = map[string]any{}
	}
	s.sessions[session.ID] = cp
	return nil
}

// GetSession returns a clone of the session or (nil, nil) when absent.
func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

// ListSessions returns all sessions ordered by updated_at descending.
func (s *InMemoryStore) ListSessions(_ context.Context) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// UpsertMessage inserts or replaces the message keyed by msg id. On replace
// the first write's created_at, session id and conv id are preserved; all
// other fields are taken from the incoming message.
func (s *InMemoryStore) UpsertMessage(_ context.Context, msg *core.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	cp := cloneMessage(msg)
	if cp.CreatedAt == 0 {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt == 0 {
		cp.UpdatedAt = now
	}

	if prev, ok := s.messages[msg.MsgID]; ok {
		cp.CreatedAt = prev.msg.CreatedAt
		cp.SessionID = prev.msg.SessionID
		cp.ConvID = prev.msg.ConvID
		s.messages[msg.MsgID] = &storedMessage{msg: cp, seq: prev.seq}
		return nil
	}
	s.seq++
	s.messages[msg.MsgID] = &storedMessage{msg: cp, seq: s.seq}
	return nil
}

// GetConversation returns the session's messages ascending by created_at,
// insertion order breaking ties.
func (s *InMemoryStore) GetConversation(_ context.Context, sessionID string) ([]*core.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored []*storedMessage
	for _, sm := range s.messages {
		if sm.msg.SessionID == sessionID {
			stored = append(stored, sm)
		}
	}
	sort.SliceStable(stored, func(i, j int) bool {
		if stored[i].msg.CreatedAt != stored[j].msg.CreatedAt {
			return stored[i].msg.CreatedAt < stored[j].msg.CreatedAt
		}
		return stored[i].seq < stored[j].seq
	})
	out := make([]*core.ConversationMessage, len(stored))
	for i, sm := range stored {
		out[i] = cloneMessage(sm.msg)
	}
	return out, nil
}

// GetContext returns the rolling context or (nil, nil) when none was written.
func (s *InMemoryStore) GetContext(_ context.Context, sessionID string) ([]core.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cm, ok := s.contexts[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]core.ChatMessage, len(cm.Messages))
	copy(out, cm.Messages)
	return out, nil
}

// UpsertContext fully replaces the session's context. The first write sets
// created_at; later writes only bump updated_at.
func (s *InMemoryStore) UpsertContext(_ context.Context, sessionID string, messages []core.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	cp := make([]core.ChatMessage, len(messages))
	copy(cp, messages)
	if prev, ok := s.contexts[sessionID]; ok {
		prev.Messages = cp
		prev.UpdatedAt = now
		return nil
	}
	s.contexts[sessionID] = &core.ContextMessage{
		SessionID: sessionID,
		Messages:  cp,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
	return nil
}

// UpdateSession applies the mutable fields from the update map, ignoring
// unknown keys. Returns false when no valid field was supplied or the session
// does not exist.
func (s *InMemoryStore) UpdateSession(_ context.Context, sessionID string, fields map[string]any) (bool, error) {
	valid := filterMutableFields(fields)
	if len(valid) == 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	for k, v := range valid {
		switch k {
		case "name":
			sess.Name, _ = v.(string)
		case "video_id":
			sess.VideoID, _ = v.(string)
		case "collection_id":
			sess.CollectionID, _ = v.(string)
		case "metadata":
			if md, ok := v.(map[string]any); ok {
				cp := make(map[string]any, len(md))
				for mk, mv := range md {
					cp[mk] = mv
				}
				sess.Metadata = cp
			}
		}
	}
	sess.UpdatedAt = time.Now().Unix()
	return true, nil
}

// SetPublic toggles the session's public flag.
func (s *InMemoryStore) SetPublic(_ context.Context, sessionID string, isPublic bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	sess.IsPublic = isPublic
	sess.UpdatedAt = time.Now().Unix()
	return true, nil
}

// GetPublicSession returns the session only when it is marked public. A
// private session behaves exactly like a missing one.
func (s *InMemoryStore) GetPublicSession(_ context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsPublic {
		return nil, nil
	}
	return sess.Clone(), nil
}

// DeleteSession removes conversation messages, context and the session row.
// Success is true iff the session row was removed; dependent components with
// zero rows are not failures.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) (*core.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sm := range s.messages {
		if sm.msg.SessionID == sessionID {
			delete(s.messages, id)
		}
	}
	delete(s.contexts, sessionID)

	res := &core.DeleteResult{}
	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		res.Success = true
	} else {
		res.Failed = append(res.Failed, core.ComponentSession)
	}
	return res, nil
}

// HealthCheck always succeeds: there is no schema to initialize.
func (s *InMemoryStore) HealthCheck(context.Context) bool { return true }

// filterMutableFields keeps only the keys UpdateSession may change.
func filterMutableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if core.MutableSessionFields[k] {
			out[k] = v
		}
	}
	return out
}

// cloneMessage deep copies a conversation message's slices and metadata.
func cloneMessage(m *core.ConversationMessage) *core.ConversationMessage {
	cp := *m
	cp.Agents = append([]string(nil), m.Agents...)
	cp.Actions = append([]string(nil), m.Actions...)
	cp.Content = append([]core.ContentBlock(nil), m.Content...)
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
