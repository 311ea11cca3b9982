// Package agent implements the capability subsystem that lets conversations
// invoke structured operations (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and declarations suitable
// for LLM tool calling.
package agent

import (
	"context"
	"fmt"
)

// Agent defines the interface for a callable capability.
//
// Agents are registered with a Registry and surfaced to language models as
// tool declarations. The model selects an agent by name and supplies JSON
// arguments; the dispatcher validates and executes the call and feeds the
// result back into the conversation.
//
// Agent implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use
type Agent interface {
	// Name returns the unique identifier for this agent.
	Name() string

	// Description returns a human-readable description of what this agent
	// does. It is provided to the LLM to help it decide when to call.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Execute runs the agent with already-decoded arguments. The returned
	// value must be JSON-serializable.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Error codes attached to *AgentError for uniform downstream handling.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// AgentError represents errors that occur during agent execution.
type AgentError struct {
	Agent   string `json:"agent"`             // Name of the agent that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *AgentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent error [%s] in %s: %s", e.Code, e.Agent, e.Message)
	}
	return fmt.Sprintf("agent error in %s: %s", e.Agent, e.Message)
}

// NewAgentError creates a new AgentError with the specified details.
func NewAgentError(agent, message, code string) *AgentError {
	return &AgentError{
		Agent:   agent,
		Message: message,
		Code:    code,
	}
}
