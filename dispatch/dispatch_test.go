package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioloop/maestro/agent"
	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
)

// fakeProvider replays a scripted sequence of responses and records the
// message windows and tool advertisements it was called with.
type fakeProvider struct {
	script []*llm.Response
	calls  [][]core.ChatMessage
	tools  [][]core.ToolSpec
}

func (f *fakeProvider) ChatCompletion(
	_ context.Context,
	messages []core.ChatMessage,
	optFns ...func(o *llm.Options),
) *llm.Response {
	window := make([]core.ChatMessage, len(messages))
	copy(window, messages)
	f.calls = append(f.calls, window)

	opts := llm.ApplyOptions(optFns...)
	f.tools = append(f.tools, opts.Tools)

	if len(f.script) == 0 {
		return &llm.Response{Content: "out of script", Status: llm.StatusSuccess}
	}
	resp := f.script[0]
	f.script = f.script[1:]
	return resp
}

func (f *fakeProvider) Info() llm.Info {
	return llm.Info{Name: "fake", Provider: "fake", SupportsTools: true}
}

func toolCallResponse(id, name string, args map[string]any) *llm.Response {
	return &llm.Response{
		Content: llm.NoResponse,
		Status:  llm.StatusSuccess,
		ToolCalls: []core.ToolCall{{
			ID:   id,
			Type: core.ToolCallType,
			Tool: core.ToolTarget{Name: name, Arguments: args},
		}},
	}
}

func newSumRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry()
	sum, err := agent.NewFunctionAgent("calculate_sum", "Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
	require.NoError(t, err)
	require.NoError(t, r.Register(sum))
	return r
}

func TestRunDirectAnswer(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		{Content: "just an answer", Status: llm.StatusSuccess},
	}}
	d := New(provider, newSumRegistry(t))

	result, err := d.Run(context.Background(), []core.ChatMessage{core.UserMessage("hi")})
	require.NoError(t, err)
	assert.True(t, result.Response.OK())
	assert.Equal(t, "just an answer", result.Response.Content)
	assert.Equal(t, 1, result.RoundTrips)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, core.RoleAssistant, result.Messages[0].Role)
	assert.Empty(t, result.ToolResults)
}

func TestRunToolRoundTrip(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		toolCallResponse("call-1", "calculate_sum", map[string]any{"a": 2.0, "b": 3.0}),
		{Content: "the sum is 5", Status: llm.StatusSuccess},
	}}
	d := New(provider, newSumRegistry(t))

	result, err := d.Run(context.Background(), []core.ChatMessage{core.UserMessage("add 2 and 3")})
	require.NoError(t, err)
	assert.Equal(t, "the sum is 5", result.Response.Content)
	assert.Equal(t, 2, result.RoundTrips)

	// assistant(tool call) -> tool result -> assistant(answer)
	require.Len(t, result.Messages, 3)
	assert.Equal(t, core.RoleAssistant, result.Messages[0].Role)
	require.Len(t, result.Messages[0].ToolCalls, 1)
	assert.Equal(t, core.RoleTool, result.Messages[1].Role)
	assert.Equal(t, "call-1", result.Messages[1].ToolCallID)
	assert.JSONEq(t, `5`, result.Messages[1].Content)
	assert.Equal(t, core.RoleAssistant, result.Messages[2].Role)

	require.Len(t, result.ToolResults, 1)
	assert.Equal(t, "calculate_sum", result.ToolResults[0].Name)
	assert.Equal(t, 5.0, result.ToolResults[0].Output)

	// The second completion sees the tool exchange in its window.
	require.Len(t, provider.calls, 2)
	second := provider.calls[1]
	assert.Equal(t, core.RoleTool, second[len(second)-1].Role)
}

func TestRunUnknownToolFedBack(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		toolCallResponse("call-1", "no_such_agent", map[string]any{}),
		{Content: "recovered", Status: llm.StatusSuccess},
	}}
	d := New(provider, newSumRegistry(t))

	result, err := d.Run(context.Background(), []core.ChatMessage{core.UserMessage("go")})
	require.NoError(t, err)
	assert.True(t, result.Response.OK(), "an unknown tool is not fatal")
	assert.Equal(t, "recovered", result.Response.Content)

	require.Len(t, result.ToolResults, 1)
	assert.Contains(t, result.ToolResults[0].Error, "no such agent")
	assert.Contains(t, result.Messages[1].Content, "Error:")
}

func TestRunRoundTripCeiling(t *testing.T) {
	// Every completion demands another tool call; the loop must stop.
	script := make([]*llm.Response, 5)
	for i := range script {
		script[i] = toolCallResponse("call", "calculate_sum", map[string]any{"a": 1.0, "b": 1.0})
	}
	provider := &fakeProvider{script: script}
	d := New(provider, newSumRegistry(t), func(o *Options) { o.MaxRoundTrips = 3 })

	result, err := d.Run(context.Background(), []core.ChatMessage{core.UserMessage("loop")})
	require.NoError(t, err)
	assert.False(t, result.Response.OK())
	assert.Contains(t, result.Response.Err, "tool call limit")
	assert.Equal(t, 3, result.RoundTrips)
}

func TestRunAgentAllowList(t *testing.T) {
	r := newSumRegistry(t)
	echo, err := agent.NewFunctionAgent("echo", "Echo the input",
		map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) { return args, nil })
	require.NoError(t, err)
	require.NoError(t, r.Register(echo))

	provider := &fakeProvider{script: []*llm.Response{
		{Content: "done", Status: llm.StatusSuccess},
		{Content: "done", Status: llm.StatusSuccess},
	}}
	d := New(provider, r)

	_, err = d.Run(context.Background(), []core.ChatMessage{core.UserMessage("hi")}, "echo")
	require.NoError(t, err)
	require.Len(t, provider.tools[0], 1)
	assert.Equal(t, "echo", provider.tools[0][0].Name)

	// No allow-list advertises everything registered.
	_, err = d.Run(context.Background(), []core.ChatMessage{core.UserMessage("hi")})
	require.NoError(t, err)
	assert.Len(t, provider.tools[1], 2)
}

func TestRunProviderError(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		llm.ErrorResponse("backend unreachable"),
	}}
	d := New(provider, newSumRegistry(t))

	result, err := d.Run(context.Background(), []core.ChatMessage{core.UserMessage("hi")})
	require.NoError(t, err, "provider failures surface in the response, not as errors")
	assert.False(t, result.Response.OK())
	assert.Equal(t, "backend unreachable", result.Response.Err)
	assert.Empty(t, result.Messages)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(&fakeProvider{}, newSumRegistry(t))
	_, err := d.Run(ctx, []core.ChatMessage{core.UserMessage("hi")})
	assert.ErrorIs(t, err, context.Canceled)
}

// -------------------- Context Assembly Tests --------------------

func TestAssembleContextOrder(t *testing.T) {
	history := []core.ChatMessage{
		core.UserMessage("earlier question"),
		core.AssistantMessage("earlier answer"),
	}

	window := AssembleContext("be helpful", history, "new question")
	require.Len(t, window, 4)
	assert.Equal(t, core.RoleSystem, window[0].Role)
	assert.Equal(t, "earlier question", window[1].Content)
	assert.Equal(t, "earlier answer", window[2].Content)
	assert.Equal(t, "new question", window[3].Content)

	// Inputs are not mutated.
	assert.Len(t, history, 2)
}

func TestAssembleContextOptionalParts(t *testing.T) {
	window := AssembleContext("", nil, "only input")
	require.Len(t, window, 1)
	assert.Equal(t, core.RoleUser, window[0].Role)

	window = AssembleContext("sys", nil, "")
	require.Len(t, window, 1)
	assert.Equal(t, core.RoleSystem, window[0].Role)
}
