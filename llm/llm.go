package llm

import (
	"context"
	"fmt"

	"github.com/studioloop/maestro/core"
)

// NoResponse is the sentinel content used when a vendor returns an empty
// message without failing.
const NoResponse = "No response"

// Status reports whether a provider call produced a usable completion.
type Status string

// Response statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the canonical result of one provider call. It is produced once
// per call and never partially constructed: on failure Status is StatusError
// and Content carries a human-readable description.
type Response struct {
	Content      string          `json:"content"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	SendTokens   int             `json:"send_tokens"`
	RecvTokens   int             `json:"recv_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	Status       Status          `json:"status"`
	Err          string          `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r *Response) OK() bool { return r.Status == StatusSuccess }

// ErrorResponse builds an error-status Response whose content carries the
// formatted description. Adapters use this for every transport, vendor and
// decode failure so errors never escape the adapter boundary as Go errors.
func ErrorResponse(format string, args ...any) *Response {
	msg := fmt.Sprintf(format, args...)
	return &Response{Content: "Error: " + msg, Status: StatusError, Err: msg}
}

// ResponseFormat requests a vendor-side output constraint. Type follows the
// OpenAI convention ("json_object", "text").
type ResponseFormat struct {
	Type string `json:"type"`
}

// Options carry the per-call request extras beyond the message list.
type Options struct {
	// Tools advertised to the model for this call. Specs without a name are
	// dropped rather than sent malformed.
	Tools []core.ToolSpec
	// ResponseFormat optionally constrains the output shape.
	ResponseFormat *ResponseFormat
}

// WithTools advertises the given tool specs for the call.
func WithTools(tools []core.ToolSpec) func(o *Options) {
	return func(o *Options) { o.Tools = tools }
}

// WithResponseFormat sets a vendor-side response format constraint.
func WithResponseFormat(rf *ResponseFormat) func(o *Options) {
	return func(o *Options) { o.ResponseFormat = rf }
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the single interface the dispatcher drives, regardless of
// backend vendor. Implementations never return a Go error from
// ChatCompletion; failures surface as an error-status Response.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []core.ChatMessage, optFns ...func(o *Options)) *Response

	// Info returns metadata about the provider implementation.
	Info() Info
}

// ApplyOptions folds functional options into an Options value.
func ApplyOptions(optFns ...func(o *Options)) Options {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// FilterTools drops tool specs lacking a name so adapters never emit
// malformed declarations. Nil is returned when nothing survives, so callers
// can treat the result as "no tools" directly.
func FilterTools(tools []core.ToolSpec) []core.ToolSpec {
	var out []core.ToolSpec
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
