// Package chat implements the conversational turn engine. A turn takes one
// user input for a session, persists it, assembles the model context, runs
// the tool-call loop and persists the assistant's reply plus the updated
// context, emitting progress to any attached realtime listeners.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/dispatch"
	"github.com/studioloop/maestro/internal/util"
	"github.com/studioloop/maestro/logging"
)

// DefaultSystemPrompt seeds conversations that are started without an
// explicit prompt.
const DefaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the user."

// Emitter receives conversation messages as they are produced, for realtime
// delivery to session subscribers.
type Emitter interface {
	EmitMessage(sessionID string, msg *core.ConversationMessage)
}

// Options configure an Engine.
type Options struct {
	// SystemPrompt is rendered per turn with the session's template
	// variables (session_id, video_id, collection_id plus metadata).
	SystemPrompt string

	// LockTimeout bounds how long a turn waits for its session's lock.
	LockTimeout time.Duration

	// Emitter receives produced messages. Nil disables realtime delivery.
	Emitter Emitter

	Logger logging.Logger
}

// TurnInput describes one user input to a session.
type TurnInput struct {
	SessionID string
	ConvID    string // empty: a new conversation id is assigned
	MsgID     string // empty: a new message id is assigned
	Text      string
	Agents    []string // agents requested for this turn; empty means all registered
	Metadata  map[string]any
}

// Engine drives conversation turns against a session store and a dispatcher.
// Turns for the same session are serialized; distinct sessions run
// concurrently. Engine is safe for concurrent use.
type Engine struct {
	store      core.SessionStore
	dispatcher *dispatch.Dispatcher
	opts       Options
	locks      *turnLocks
}

// New creates an Engine.
func New(store core.SessionStore, dispatcher *dispatch.Dispatcher, optFns ...func(o *Options)) *Engine {
	opts := Options{
		SystemPrompt: DefaultSystemPrompt,
		LockTimeout:  30 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		locks:      newTurnLocks(opts.LockTimeout),
	}
}

// Turn executes one conversation turn and returns the assistant's output
// message. Model and tool failures do not fail the turn; they are persisted
// and returned as an error-status output message. The returned error covers
// invalid input, lock timeouts, cancellation and storage failures.
func (e *Engine) Turn(ctx context.Context, input TurnInput) (*core.ConversationMessage, error) {
	if input.SessionID == "" {
		return nil, fmt.Errorf("chat: session id is required")
	}
	if input.Text == "" {
		return nil, fmt.Errorf("chat: input text is required")
	}
	if input.ConvID == "" {
		input.ConvID = uuid.NewString()
	}
	if input.MsgID == "" {
		input.MsgID = uuid.NewString()
	}

	release, err := e.locks.Acquire(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := e.ensureSession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	inbound := &core.ConversationMessage{
		MsgID:     input.MsgID,
		SessionID: input.SessionID,
		ConvID:    input.ConvID,
		MsgType:   core.MsgTypeInput,
		Agents:    input.Agents,
		Content:   []core.ContentBlock{core.TextBlock(input.Text)},
		Status:    core.MsgStatusSuccess,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  input.Metadata,
	}
	if err := e.store.UpsertMessage(ctx, inbound); err != nil {
		return nil, fmt.Errorf("chat: persist input message: %w", err)
	}
	e.emit(inbound)

	history, err := e.store.GetContext(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: load context: %w", err)
	}

	prompt, err := e.renderPrompt(session)
	if err != nil {
		e.opts.Logger.Warn("chat.prompt.render_failed", "session_id", input.SessionID, "error", err.Error())
		prompt = e.opts.SystemPrompt
	}

	window := dispatch.AssembleContext(prompt, history, input.Text)

	result, err := e.dispatcher.Run(ctx, window, input.Agents...)
	if err != nil {
		return nil, err
	}

	output := e.buildOutput(input, result)
	if err := e.store.UpsertMessage(ctx, output); err != nil {
		return nil, fmt.Errorf("chat: persist output message: %w", err)
	}

	updated := append(history, core.UserMessage(input.Text))
	updated = append(updated, result.Messages...)
	if err := e.store.UpsertContext(ctx, input.SessionID, updated); err != nil {
		return nil, fmt.Errorf("chat: persist context: %w", err)
	}

	e.emit(output)

	return output, nil
}

// ensureSession loads the session, creating it on first contact.
func (e *Engine) ensureSession(ctx context.Context, sessionID string) (*core.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: load session: %w", err)
	}
	if session != nil {
		return session, nil
	}

	session = core.NewSession(sessionID)
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("chat: create session: %w", err)
	}

	return session, nil
}

// renderPrompt expands the system prompt template with session variables.
func (e *Engine) renderPrompt(session *core.Session) (string, error) {
	vars := map[string]any{
		"session_id":    session.ID,
		"video_id":      session.VideoID,
		"collection_id": session.CollectionID,
	}
	for k, v := range session.Metadata {
		vars[k] = v
	}

	return util.RenderPrompt(e.opts.SystemPrompt, vars)
}

// buildOutput converts a dispatch result into the persisted output message.
func (e *Engine) buildOutput(input TurnInput, result *dispatch.Result) *core.ConversationMessage {
	now := time.Now().Unix()

	var (
		blocks []core.ContentBlock
		agents []string
		status = core.MsgStatusSuccess
	)

	for _, tr := range result.ToolResults {
		blocks = append(blocks, core.ToolResultBlock(tr))
		agents = appendUnique(agents, tr.Name)
	}

	if result.Response != nil {
		blocks = append(blocks, core.TextBlock(result.Response.Content))
		if !result.Response.OK() {
			status = core.MsgStatusError
		}
	}

	return &core.ConversationMessage{
		MsgID:     uuid.NewString(),
		SessionID: input.SessionID,
		ConvID:    input.ConvID,
		MsgType:   core.MsgTypeOutput,
		Agents:    agents,
		Content:   blocks,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *Engine) emit(msg *core.ConversationMessage) {
	if e.opts.Emitter != nil {
		e.opts.Emitter.EmitMessage(msg.SessionID, msg)
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
