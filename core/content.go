package core

// BlockType discriminates the heterogeneous content blocks carried by a
// conversation message.
type BlockType string

// Content block kinds. The set is closed; storage backends persist blocks as
// tagged JSON so replayed conversations decode without provider involvement.
const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolCall   BlockType = "tool_call"
	BlockTypeToolResult BlockType = "tool_result"
	BlockTypeData       BlockType = "data"
)

// ToolResult records the outcome of a dispatched tool call, keyed by the
// originating call id. Exactly one of Output or Error is meaningful.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ContentBlock is one ordered segment of a conversation message. The Type tag
// selects which payload field is set.
type ContentBlock struct {
	Type       BlockType      `json:"type"`
	Text       string         `json:"text,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	ToolCall   *ToolCall      `json:"tool_call,omitempty"`
	ToolResult *ToolResult    `json:"tool_result,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// ToolCallBlock wraps a tool call as a content block.
func ToolCallBlock(tc ToolCall) ContentBlock {
	return ContentBlock{Type: BlockTypeToolCall, ToolCall: &tc}
}

// ToolResultBlock wraps a tool result as a content block.
func ToolResultBlock(tr ToolResult) ContentBlock {
	return ContentBlock{Type: BlockTypeToolResult, ToolResult: &tr}
}

// DataBlock builds a structured payload content block.
func DataBlock(data map[string]any) ContentBlock {
	return ContentBlock{Type: BlockTypeData, Data: data}
}
