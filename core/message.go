package core

import "encoding/json"

// Role identifies the author of a canonical chat message.
type Role string

// Conversation roles understood by every provider adapter.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallType is the vendor-neutral tag attached to tool calls. All current
// providers use function-style calling.
const ToolCallType = "function"

// ToolTarget names the capability provider a tool call is addressed to,
// together with its already-decoded argument mapping. Arguments are never a
// raw JSON string at this layer; adapters decode vendor payloads on the way
// in and re-encode on the way out.
type ToolTarget struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCall is a single function call request surfaced by a model provider,
// unified across vendors so dispatch logic needs no per-provider branching.
type ToolCall struct {
	ID   string     `json:"id"`
	Tool ToolTarget `json:"tool"`
	Type string     `json:"type"`
}

// ToolSpec declaratively exposes a callable capability provider to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatMessage is the wire-neutral chat message consumed and produced by
// provider adapters and persisted as session context. Tool-role messages
// carry ToolCallID referencing the originating call.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-role chat message carrying the result for the
// given originating tool call id.
func ToolMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: callID}
}

// EncodeArguments serializes a tool call's argument mapping back to JSON for
// vendors that expect string-encoded arguments. A nil mapping encodes as an
// empty object.
func (t ToolTarget) EncodeArguments() string {
	if t.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(t.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}
