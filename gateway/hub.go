// Package gateway provides the realtime delivery surface: a hub of
// per-session rooms and a websocket endpoint through which clients subscribe
// to sessions and submit conversation turns. Messages produced by the chat
// engine are broadcast to every subscriber of the owning session.
package gateway

import (
	"sync"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/logging"
)

// EventChatMessage is the event name carrying conversation messages.
const EventChatMessage = "chat_message"

// subscriber receives encoded frames for the rooms it joined.
type subscriber interface {
	deliver(frame Frame)
}

// Hub tracks which subscribers belong to which session room and broadcasts
// conversation messages to them. It implements chat.Emitter and is safe for
// concurrent use.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[subscriber]struct{}
	logger logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Hub{
		rooms:  make(map[string]map[subscriber]struct{}),
		logger: logger,
	}
}

// EmitMessage broadcasts a conversation message to the session's room.
// Sessions without subscribers drop the message silently.
func (h *Hub) EmitMessage(sessionID string, msg *core.ConversationMessage) {
	frame := Frame{
		Type:    frameTypeEvent,
		Event:   EventChatMessage,
		Payload: msg,
	}

	h.mu.RLock()
	room := h.rooms[sessionID]
	for sub := range room {
		sub.deliver(frame)
	}
	count := len(room)
	h.mu.RUnlock()

	h.logger.Debug("gateway.emit", "session_id", sessionID,
		"event", EventChatMessage, "subscribers", count)
}

// SubscriberCount reports the number of subscribers in a session's room.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[sessionID])
}

func (h *Hub) join(sessionID string, sub subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[subscriber]struct{})
		h.rooms[sessionID] = room
	}
	room[sub] = struct{}{}
}

func (h *Hub) leaveAll(sub subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, room := range h.rooms {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}
