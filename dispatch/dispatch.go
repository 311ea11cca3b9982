// Package dispatch implements the tool-call loop between a language model
// and the agent registry. The dispatcher alternates between awaiting a model
// completion and executing the tool calls it requested, feeding results back
// until the model answers with plain content or the round-trip ceiling is
// reached.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studioloop/maestro/agent"
	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
	"github.com/studioloop/maestro/logging"
)

// State identifies the dispatcher's position in the tool-call loop.
type State string

// Dispatcher states.
const (
	StateAwaitingLLM    State = "awaiting_llm"
	StateExecutingTools State = "executing_tools"
)

// DefaultMaxRoundTrips bounds how many model completions a single turn may
// consume before the loop is aborted.
const DefaultMaxRoundTrips = 10

// Options configure a Dispatcher.
type Options struct {
	// MaxRoundTrips caps model completions per Run. Values below 1 fall
	// back to DefaultMaxRoundTrips.
	MaxRoundTrips int

	Logger logging.Logger
}

// Result carries the outcome of one dispatched turn.
type Result struct {
	// Response is the final model response. Its Status reports whether the
	// turn succeeded; loop failures (round-trip ceiling, provider errors)
	// surface here as error-status responses.
	Response *llm.Response

	// Messages are the chat messages appended during the run, in order:
	// assistant messages (including their tool calls) and tool-role result
	// messages. Callers append these to the persisted context.
	Messages []core.ChatMessage

	// ToolResults records each executed tool call.
	ToolResults []core.ToolResult

	// RoundTrips counts model completions consumed.
	RoundTrips int
}

// Dispatcher runs the model/tool loop for conversation turns. It is
// stateless between runs and safe for concurrent use.
type Dispatcher struct {
	provider llm.Provider
	registry *agent.Registry
	opts     Options
}

// New creates a Dispatcher for the given provider and agent registry.
func New(provider llm.Provider, registry *agent.Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		MaxRoundTrips: DefaultMaxRoundTrips,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRoundTrips < 1 {
		opts.MaxRoundTrips = DefaultMaxRoundTrips
	}

	return &Dispatcher{provider: provider, registry: registry, opts: opts}
}

// Run executes one turn against the assembled context. agentNames restricts
// which registered agents are advertised to the model; none means all. The
// returned error is non-nil only for context cancellation; model and tool
// failures are reported through the Result's error-status Response.
func (d *Dispatcher) Run(ctx context.Context, messages []core.ChatMessage, agentNames ...string) (*Result, error) {
	working := make([]core.ChatMessage, len(messages))
	copy(working, messages)

	result := &Result{}
	specs := d.registry.Specs(agentNames...)

	for trip := 0; trip < d.opts.MaxRoundTrips; trip++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		d.opts.Logger.Debug("dispatch.state", "state", StateAwaitingLLM, "round_trip", trip)

		start := time.Now()
		resp := d.provider.ChatCompletion(ctx, working, llm.WithTools(specs))
		result.RoundTrips++

		logging.LogLLMCall(d.opts.Logger, d.provider.Info().Name,
			resp.TotalTokens, time.Since(start), resp.OK(), resp.Err)

		if !resp.OK() {
			result.Response = resp
			return result, nil
		}

		assistant := core.AssistantMessage(resp.Content)
		assistant.ToolCalls = resp.ToolCalls
		working = append(working, assistant)
		result.Messages = append(result.Messages, assistant)

		if len(resp.ToolCalls) == 0 {
			result.Response = resp
			return result, nil
		}

		d.opts.Logger.Debug("dispatch.state", "state", StateExecutingTools,
			"round_trip", trip, "tool_calls", len(resp.ToolCalls))

		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			toolResult := d.executeCall(ctx, call)
			result.ToolResults = append(result.ToolResults, toolResult)

			toolMsg := core.ToolMessage(call.ID, encodeToolOutput(toolResult))
			working = append(working, toolMsg)
			result.Messages = append(result.Messages, toolMsg)
		}
	}

	result.Response = llm.ErrorResponse(
		"tool call limit reached after %d round trips", d.opts.MaxRoundTrips)
	return result, nil
}

// executeCall resolves and runs a single tool call. Unknown agents and
// execution failures produce an error-carrying ToolResult that is fed back
// to the model rather than aborting the loop.
func (d *Dispatcher) executeCall(ctx context.Context, call core.ToolCall) core.ToolResult {
	result := core.ToolResult{ID: call.ID, Name: call.Tool.Name}

	a := d.registry.Get(call.Tool.Name)
	if a == nil {
		result.Error = (&agent.AgentError{
			Agent:   call.Tool.Name,
			Message: "no such agent",
			Code:    agent.CodeNotFound,
		}).Error()
		d.opts.Logger.Warn("dispatch.unknown_agent", "agent", call.Tool.Name, "call_id", call.ID)
		return result
	}

	start := time.Now()
	output, err := a.Execute(ctx, call.Tool.Arguments)
	logging.LogAgentCall(d.opts.Logger, call.Tool.Name, time.Since(start), err == nil, err)

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Output = output

	return result
}

// encodeToolOutput renders a tool result as the content of the tool-role
// message returned to the model.
func encodeToolOutput(result core.ToolResult) string {
	if result.Error != "" {
		return fmt.Sprintf("Error: %s", result.Error)
	}
	raw, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Sprintf("%v", result.Output)
	}
	return string(raw)
}
