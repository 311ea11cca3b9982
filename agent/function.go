package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/studioloop/maestro/internal/util"
	"github.com/studioloop/maestro/logging"
)

// FunctionAgent is a generic adapter that exposes a plain Go function as a
// callable agent.
//
// Responsibilities:
//   - Holds a JSON schema describing the accepted arguments
//   - Validates model-supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *AgentError with
//     consistent codes (VALIDATION_ERROR for schema mismatches,
//     EXECUTION_ERROR for failures of the wrapped function; custom codes are
//     preserved if the function returns *AgentError directly)
//
// A FunctionAgent has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionAgent struct {
	name        string
	description string
	parameters  map[string]any
	schema      *jsonschema.Schema
	logger      logging.Logger
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// FunctionAgentOptions configure a FunctionAgent.
type FunctionAgentOptions struct {
	Logger logging.Logger
}

// NewFunctionAgent constructs a FunctionAgent from an explicit schema and
// function. The schema is compiled at construction; a malformed schema fails
// here rather than on first call.
//
// Example:
//
//	sum, err := agent.NewFunctionAgent(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionAgent(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionAgentOptions),
) (*FunctionAgent, error) {
	opts := FunctionAgentOptions{Logger: logging.NoOpLogger{}}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	schema, err := compileSchema(name, parameters)
	if err != nil {
		return nil, fmt.Errorf("agent %s: compile parameter schema: %w", name, err)
	}

	return &FunctionAgent{
		name:        name,
		description: description,
		parameters:  parameters,
		schema:      schema,
		logger:      opts.Logger,
		fn:          fn,
	}, nil
}

// NewFunctionAgentFromStruct derives the parameter schema from a struct
// using reflection. It is a convenience for simple argument containers and
// produces a schema equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum, err := agent.NewFunctionAgentFromStruct(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  SumArgs{},
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionAgentFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionAgentOptions),
) (*FunctionAgent, error) {
	return NewFunctionAgent(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique agent name used in tool declarations and routing.
func (a *FunctionAgent) Name() string { return a.name }

// Description returns the short natural language description exposed to models.
func (a *FunctionAgent) Description() string { return a.description }

// Parameters returns the JSON schema describing expected arguments.
func (a *FunctionAgent) Parameters() map[string]any { return a.parameters }

// Execute validates the provided args against the declared schema then
// invokes the underlying function. Validation or execution failures are
// wrapped (or passed through) as *AgentError for uniform downstream handling.
func (a *FunctionAgent) Execute(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()
	a.logger.Debug("agent.execute.start", "agent", a.name)

	if err := a.schema.Validate(normalizeArgs(args)); err != nil {
		a.logger.Warn("agent.execute.validation_failed", "agent", a.name, "error", err.Error())

		return nil, &AgentError{
			Agent:   a.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := a.fn(ctx, args)
	if err != nil {
		if agentErr, ok := err.(*AgentError); ok {
			a.logger.Error("agent.execute.error", "agent", a.name, "error", agentErr.Message)
			return nil, agentErr
		}

		a.logger.Error("agent.execute.error", "agent", a.name, "error", err.Error())

		return nil, &AgentError{
			Agent:   a.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	a.logger.Info("agent.execute.success", "agent", a.name,
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// compileSchema compiles a schema map into a validator. The map round-trips
// through JSON so schemas built with Go types ([]string required lists,
// nested maps) compile the same as schemas decoded from the wire.
func compileSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	if parameters == nil {
		parameters = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("maestro://agent/%s/parameters.json", name)
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// normalizeArgs round-trips arguments through JSON so values built with Go
// types (int, []string, structs) validate the same as wire-decoded ones. On
// any marshal failure the original map is validated as-is.
func normalizeArgs(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
