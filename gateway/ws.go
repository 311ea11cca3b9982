package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studioloop/maestro/chat"
	"github.com/studioloop/maestro/logging"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

// Frame is the wire envelope exchanged over the websocket.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError carries a machine-readable failure to the client.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	frameTypeReq   = "req"
	frameTypeRes   = "res"
	frameTypeEvent = "event"
)

type subscribeParams struct {
	SessionID string `json:"session_id"`
}

type chatParams struct {
	SessionID string         `json:"session_id"`
	ConvID    string         `json:"conv_id,omitempty"`
	MsgID     string         `json:"msg_id,omitempty"`
	Content   string         `json:"content"`
	Agents    []string       `json:"agents,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Handler upgrades HTTP requests to websocket connections serving the chat
// protocol: clients subscribe to session rooms and submit turns; produced
// messages arrive as chat_message events through the Hub.
type Handler struct {
	hub      *Hub
	engine   *chat.Engine
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to a hub and chat engine.
func NewHandler(hub *Hub, engine *chat.Engine, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Handler{
		hub:    hub,
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
		id:      uuid.NewString(),
	}

	// Query-string subscription mirrors clients that connect straight into
	// a session room without a subscribe frame.
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		h.hub.join(sessionID, c)
	}

	c.run()
}

type wsClient struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	id      string

	closeOnce sync.Once
}

func (c *wsClient) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *wsClient) close() {
	// The send channel stays open; writeLoop exits via ctx so late
	// broadcasts from the hub cannot panic on a closed channel.
	c.closeOnce.Do(func() {
		c.handler.hub.leaveAll(c)
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *wsClient) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("", "invalid_frame", err.Error())
			continue
		}
		if frame.Type == "" {
			frame.Type = frameTypeReq
		}
		if frame.Type != frameTypeReq {
			c.sendError(frame.ID, "invalid_frame", "unsupported frame type")
			continue
		}

		c.handleRequest(&frame)
	}
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleRequest(frame *Frame) {
	switch frame.Method {
	case "ping":
		c.sendResponse(frame.ID, map[string]any{"timestamp": time.Now().UnixMilli()})
	case "subscribe":
		c.handleSubscribe(frame)
	case "chat":
		c.handleChat(frame)
	default:
		c.sendError(frame.ID, "unknown_method", "unknown method "+frame.Method)
	}
}

func (c *wsClient) handleSubscribe(frame *Frame) {
	var params subscribeParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.sendError(frame.ID, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.SessionID) == "" {
		c.sendError(frame.ID, "session_required", "session_id is required")
		return
	}

	c.handler.hub.join(params.SessionID, c)
	c.sendResponse(frame.ID, map[string]any{"subscribed": params.SessionID})
}

// handleChat accepts the turn, subscribes the client to the session room and
// runs the engine asynchronously; results arrive as chat_message events.
func (c *wsClient) handleChat(frame *Frame) {
	var params chatParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.sendError(frame.ID, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.SessionID) == "" {
		c.sendError(frame.ID, "session_required", "session_id is required")
		return
	}
	if strings.TrimSpace(params.Content) == "" {
		c.sendError(frame.ID, "content_required", "content is required")
		return
	}

	c.handler.hub.join(params.SessionID, c)
	c.sendResponse(frame.ID, map[string]any{"status": "accepted"})

	go func() {
		_, err := c.handler.engine.Turn(c.ctx, chat.TurnInput{
			SessionID: params.SessionID,
			ConvID:    params.ConvID,
			MsgID:     params.MsgID,
			Text:      params.Content,
			Agents:    params.Agents,
			Metadata:  params.Metadata,
		})
		if err != nil {
			c.handler.logger.Error("gateway.chat.failed",
				"session_id", params.SessionID, "error", err.Error())
			c.sendError(frame.ID, "turn_failed", err.Error())
		}
	}()
}

// deliver implements subscriber. A slow client drops frames rather than
// blocking the broadcast.
func (c *wsClient) deliver(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- data:
	default:
		c.handler.logger.Warn("gateway.client.backpressure", "client_id", c.id)
	}
}

func (c *wsClient) sendResponse(id string, payload any) {
	c.deliver(Frame{Type: frameTypeRes, ID: id, Payload: payload})
}

func (c *wsClient) sendError(id, code, message string) {
	c.deliver(Frame{
		Type:  frameTypeRes,
		ID:    id,
		Error: &FrameError{Code: code, Message: message},
	})
}
