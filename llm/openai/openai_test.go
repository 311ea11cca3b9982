package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
)

// -------------------- Request Building Tests --------------------

func TestBuildMessages(t *testing.T) {
	assistant := core.AssistantMessage("")
	assistant.ToolCalls = []core.ToolCall{{
		ID:   "call-1",
		Type: core.ToolCallType,
		Tool: core.ToolTarget{Name: "search", Arguments: map[string]any{"query": "cats"}},
	}}

	msgs := buildMessages([]core.ChatMessage{
		core.SystemMessage("sys"),
		core.UserMessage("hi"),
		assistant,
		core.ToolMessage("call-1", `{"hits":3}`),
		core.AssistantMessage("plain reply"),
	})
	require.Len(t, msgs, 5)

	assert.Equal(t, openai.SystemMessage("sys"), msgs[0])
	assert.Equal(t, openai.UserMessage("hi"), msgs[1])

	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	tc := msgs[2].OfAssistant.ToolCalls[0]
	assert.Equal(t, "call-1", tc.ID)
	assert.Equal(t, "search", tc.Function.Name)
	assert.JSONEq(t, `{"query":"cats"}`, tc.Function.Arguments)

	assert.Equal(t, openai.ToolMessage(`{"hits":3}`, "call-1"), msgs[3])
	assert.Equal(t, openai.AssistantMessage("plain reply"), msgs[4])
}

func TestBuildParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChatModel = "gpt-4o-mini"
	cfg.MaxTokens = 256
	cfg.Temperature = 0.3

	params := buildParams(cfg, []core.ChatMessage{core.UserMessage("hi")}, llm.Options{
		Tools: []core.ToolSpec{
			{Name: "search", Description: "Find things", Parameters: map[string]any{"type": "object"}},
			{Name: ""}, // nameless specs are dropped
		},
	})

	assert.Equal(t, openai.ChatModel("gpt-4o-mini"), params.Model)
	assert.Equal(t, int64(256), params.MaxTokens.Or(0))
	assert.InDelta(t, 0.3, params.Temperature.Or(0), 1e-9)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "search", params.Tools[0].Function.Name)
	assert.Equal(t, "Find things", params.Tools[0].Function.Description.Or(""))
}

func TestBuildParamsResponseFormat(t *testing.T) {
	params := buildParams(DefaultConfig(), nil, llm.Options{
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	assert.NotNil(t, params.ResponseFormat.OfJSONObject)

	params = buildParams(DefaultConfig(), nil, llm.Options{})
	assert.Nil(t, params.ResponseFormat.OfJSONObject)
}

// -------------------- Response Parsing Tests --------------------

func TestParseResponse(t *testing.T) {
	resp := parseResponse(&openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: "tool_calls",
			Message: openai.ChatCompletionMessage{
				Content: "checking",
				ToolCalls: []openai.ChatCompletionMessageToolCall{{
					ID: "call-1",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "search",
						Arguments: `{"query":"cats"}`,
					},
				}},
			},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})

	assert.True(t, resp.OK())
	assert.Equal(t, "checking", resp.Content)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 10, resp.SendTokens)
	assert.Equal(t, 5, resp.RecvTokens)
	assert.Equal(t, 15, resp.TotalTokens)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, core.ToolCallType, resp.ToolCalls[0].Type)
	assert.Equal(t, "search", resp.ToolCalls[0].Tool.Name)
	assert.Equal(t, "cats", resp.ToolCalls[0].Tool.Arguments["query"])
}

func TestParseResponseEmptyContent(t *testing.T) {
	resp := parseResponse(&openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{}}},
	})
	assert.True(t, resp.OK())
	assert.Equal(t, llm.NoResponse, resp.Content)
}

func TestParseResponseNoChoices(t *testing.T) {
	resp := parseResponse(&openai.ChatCompletion{})
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err, "no choices")
}

func TestParseResponseMalformedArguments(t *testing.T) {
	resp := parseResponse(&openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{{
					ID: "call-1",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "search",
						Arguments: `{"query":`,
					},
				}},
			},
		}},
	})
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Err, "decode tool call arguments")
	assert.Contains(t, resp.Err, "call-1")
}

// -------------------- Normalization Round Trip --------------------

func TestToolCallRoundTrip(t *testing.T) {
	original := []core.ToolCall{{
		ID:   "call-1",
		Type: core.ToolCallType,
		Tool: core.ToolTarget{Name: "search", Arguments: map[string]any{"query": "cats", "limit": 3.0}},
	}}

	// Encode as a request, echo back as a vendor response, decode again.
	encoded := buildToolCalls(original)
	require.Len(t, encoded, 1)

	echoed := []openai.ChatCompletionMessageToolCall{{
		ID: encoded[0].ID,
		Function: openai.ChatCompletionMessageToolCallFunction{
			Name:      encoded[0].Function.Name,
			Arguments: encoded[0].Function.Arguments,
		},
	}}

	decoded, err := decodeToolCalls(echoed)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
