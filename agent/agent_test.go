package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumParams() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
}

func newSumAgent(t *testing.T) *FunctionAgent {
	t.Helper()
	a, err := NewFunctionAgent(
		"calculate_sum",
		"Calculate the sum of two numbers",
		sumParams(),
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
	require.NoError(t, err)
	return a
}

// -------------------- FunctionAgent Tests --------------------

func TestFunctionAgentSuccess(t *testing.T) {
	a := newSumAgent(t)

	result, err := a.Execute(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionAgentValidationError(t *testing.T) {
	a := newSumAgent(t)

	_, err := a.Execute(context.Background(), map[string]any{"a": 2.0})
	require.Error(t, err)

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, CodeValidation, agentErr.Code)
	assert.Equal(t, "calculate_sum", agentErr.Agent)

	// Wrong type also fails validation.
	_, err = a.Execute(context.Background(), map[string]any{"a": "two", "b": 3.0})
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, CodeValidation, agentErr.Code)
}

func TestFunctionAgentExecutionError(t *testing.T) {
	a, err := NewFunctionAgent("boom", "Always fails", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("kaput")
		})
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), map[string]any{})
	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, CodeExecution, agentErr.Code)
	assert.Equal(t, "kaput", agentErr.Message)
}

func TestFunctionAgentPreservesCustomError(t *testing.T) {
	custom := NewAgentError("quota", "limit exceeded", "QUOTA_EXCEEDED")
	a, err := NewFunctionAgent("quota", "Quota limited", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) {
			return nil, custom
		})
	require.NoError(t, err)

	_, err = a.Execute(context.Background(), map[string]any{})
	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, "QUOTA_EXCEEDED", agentErr.Code)
}

func TestFunctionAgentBadSchema(t *testing.T) {
	_, err := NewFunctionAgent("bad", "Broken schema",
		map[string]any{"type": "object", "required": "not-a-list"},
		func(context.Context, map[string]any) (any, error) { return nil, nil })
	assert.Error(t, err)
}

type echoArgs struct {
	Text  string `json:"text" description:"Text to echo"`
	Times *int   `json:"times,omitempty" description:"Repeat count"`
}

func TestFunctionAgentFromStruct(t *testing.T) {
	a, err := NewFunctionAgentFromStruct("echo", "Echo text", echoArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		})
	require.NoError(t, err)

	props, ok := a.Parameters()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Contains(t, props, "times")

	result, err := a.Execute(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)

	// "text" is required, "times" is not.
	_, err = a.Execute(context.Background(), map[string]any{"times": 2})
	assert.Error(t, err)
}

// -------------------- Registry Tests --------------------

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	sum := newSumAgent(t)

	require.NoError(t, r.Register(sum))
	assert.Equal(t, sum, r.Get("calculate_sum"))
	assert.Nil(t, r.Get("missing"))

	err := r.Register(sum)
	assert.Error(t, err, "duplicate names must be rejected")
}

func TestRegistrySpecs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newSumAgent(t)))

	echo, err := NewFunctionAgentFromStruct("echo", "Echo text", echoArgs{},
		func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil })
	require.NoError(t, err)
	require.NoError(t, r.Register(echo))

	all := r.Specs()
	require.Len(t, all, 2)
	assert.Equal(t, "calculate_sum", all[0].Name)
	assert.Equal(t, "echo", all[1].Name)

	subset := r.Specs("echo", "nonexistent")
	require.Len(t, subset, 1)
	assert.Equal(t, "echo", subset[0].Name)
}
