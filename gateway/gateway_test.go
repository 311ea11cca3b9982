package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioloop/maestro/agent"
	"github.com/studioloop/maestro/chat"
	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/dispatch"
	"github.com/studioloop/maestro/llm"
	"github.com/studioloop/maestro/store"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	frames []Frame
}

func (f *fakeSubscriber) deliver(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// -------------------- Hub Tests --------------------

func TestHubBroadcastsToRoom(t *testing.T) {
	hub := NewHub(nil)
	subscribed := &fakeSubscriber{}
	other := &fakeSubscriber{}

	hub.join("s1", subscribed)
	hub.join("s2", other)

	hub.EmitMessage("s1", &core.ConversationMessage{MsgID: "m1", SessionID: "s1"})

	assert.Equal(t, 1, subscribed.count())
	assert.Equal(t, 0, other.count(), "other rooms must not receive the message")

	subscribed.mu.Lock()
	frame := subscribed.frames[0]
	subscribed.mu.Unlock()
	assert.Equal(t, frameTypeEvent, frame.Type)
	assert.Equal(t, EventChatMessage, frame.Event)
}

func TestHubEmitWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	// No room, no panic.
	hub.EmitMessage("ghost", &core.ConversationMessage{MsgID: "m1"})
	assert.Equal(t, 0, hub.SubscriberCount("ghost"))
}

func TestHubLeaveAll(t *testing.T) {
	hub := NewHub(nil)
	sub := &fakeSubscriber{}
	hub.join("s1", sub)
	hub.join("s2", sub)

	hub.leaveAll(sub)
	assert.Equal(t, 0, hub.SubscriberCount("s1"))
	assert.Equal(t, 0, hub.SubscriberCount("s2"))

	hub.EmitMessage("s1", &core.ConversationMessage{MsgID: "m1"})
	assert.Equal(t, 0, sub.count())
}

// -------------------- Websocket Tests --------------------

type scriptedProvider struct {
	mu     sync.Mutex
	script []*llm.Response
}

func (p *scriptedProvider) ChatCompletion(
	_ context.Context,
	_ []core.ChatMessage,
	_ ...func(o *llm.Options),
) *llm.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.script) == 0 {
		return &llm.Response{Content: "done", Status: llm.StatusSuccess}
	}
	resp := p.script[0]
	p.script = p.script[1:]
	return resp
}

func (p *scriptedProvider) Info() llm.Info { return llm.Info{Name: "scripted", Provider: "fake"} }

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(nil)
	st := store.NewInMemoryStore()
	d := dispatch.New(&scriptedProvider{}, agent.NewRegistry())
	engine := chat.New(st, d, func(o *chat.Options) { o.Emitter = hub })

	srv := httptest.NewServer(NewHandler(hub, engine, nil))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWSSubscribeRequiresSessionID(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWS(t, srv.URL)

	writeFrame(t, conn, Frame{
		Type:   frameTypeReq,
		ID:     "r1",
		Method: "subscribe",
		Params: json.RawMessage(`{}`),
	})

	resp := readFrame(t, conn)
	assert.Equal(t, frameTypeRes, resp.Type)
	assert.Equal(t, "r1", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "session_required", resp.Error.Code)
}

func TestWSChatDeliversMessages(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWS(t, srv.URL)

	writeFrame(t, conn, Frame{
		Type:   frameTypeReq,
		ID:     "r1",
		Method: "chat",
		Params: json.RawMessage(`{"session_id":"s1","content":"hi"}`),
	})

	// Acceptance response first, then input and output messages as events.
	resp := readFrame(t, conn)
	assert.Equal(t, frameTypeRes, resp.Type)
	assert.Nil(t, resp.Error)

	var events []Frame
	for len(events) < 2 {
		frame := readFrame(t, conn)
		if frame.Type == frameTypeEvent && frame.Event == EventChatMessage {
			events = append(events, frame)
		}
	}

	first, ok := events[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "input", first["msg_type"])
	second, ok := events[1].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "output", second["msg_type"])
}

func TestWSQuerySubscription(t *testing.T) {
	srv, hub := newTestServer(t)
	conn := dialWS(t, srv.URL+"?session_id=s9")

	require.Eventually(t, func() bool {
		return hub.SubscriberCount("s9") == 1
	}, time.Second, 10*time.Millisecond)

	hub.EmitMessage("s9", &core.ConversationMessage{MsgID: "m1", SessionID: "s9", MsgType: core.MsgTypeOutput})
	frame := readFrame(t, conn)
	assert.Equal(t, EventChatMessage, frame.Event)
}

func TestWSUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialWS(t, srv.URL)

	writeFrame(t, conn, Frame{Type: frameTypeReq, ID: "r1", Method: "bogus"})
	resp := readFrame(t, conn)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_method", resp.Error.Code)
}
