// Package openai provides a llm.Provider implementation using the OpenAI
// Chat Completions API (including function/tool calling). It adapts Maestro's
// canonical chat messages into the SDK's message format and back.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
)

// Options configure the OpenAI provider adapter.
type Options struct {
	Config llm.Config
}

// DefaultConfig returns the adapter's baseline configuration before
// environment overrides.
func DefaultConfig() llm.Config {
	return llm.Config{
		ChatModel:   openai.ChatModelGPT4o,
		MaxTokens:   4096,
		Temperature: 0.7,
		TopP:        1.0,
		Timeout:     30 * time.Second,
	}
}

// Provider wraps the OpenAI Chat Completions API behind the generic
// llm.Provider interface.
type Provider struct {
	client *openai.Client
	cfg    llm.Config
}

// New creates a new OpenAI provider from OPENAI_* environment configuration
// plus optional overrides. A missing API key fails construction.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{Config: llm.ConfigFromEnv(llm.EnvPrefixOpenAI, DefaultConfig())}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(llm.EnvPrefixOpenAI); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.Config.APIKey)}
	if opts.Config.APIBase != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.Config.APIBase))
	}
	if opts.Config.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Config.Timeout))
	}
	client := openai.NewClient(clientOpts...)

	return &Provider{client: &client, cfg: opts.Config}, nil
}

// NewFromClient creates a provider from an existing client, bypassing
// environment configuration. Intended for tests and custom transports.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{Config: DefaultConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, cfg: opts.Config}
}

// ChatCompletion implements llm.Provider. Transport and vendor failures are
// returned as an error-status Response, never as a Go error.
func (p *Provider) ChatCompletion(
	ctx context.Context,
	messages []core.ChatMessage,
	optFns ...func(o *llm.Options),
) *llm.Response {
	opts := llm.ApplyOptions(optFns...)
	params := buildParams(p.cfg, messages, opts)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.ErrorResponse("openai api error: %v", err)
	}
	return parseResponse(resp)
}

// Info returns metadata describing this OpenAI provider implementation.
func (p *Provider) Info() llm.Info {
	return llm.Info{Name: p.cfg.ChatModel, Provider: string(llm.ProviderOpenAI), SupportsTools: true}
}

// buildMessages converts canonical chat messages into OpenAI chat messages.
// Assistant tool calls are re-encoded with the function envelope; tool-role
// messages become tool messages keyed by the originating call id.
func buildMessages(messages []core.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: buildToolCalls(m.ToolCalls),
				},
			})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}
	return out
}

// buildToolCalls re-encodes canonical tool calls with JSON string arguments.
func buildToolCalls(calls []core.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
	for i, tc := range calls {
		out[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Tool.Name,
				Arguments: tc.Tool.EncodeArguments(),
			},
		}
	}
	return out
}

// buildParams assembles the request including tool declarations and optional
// response format. Unset generation parameters are omitted from the outgoing
// request rather than sent as null.
func buildParams(cfg llm.Config, messages []core.ChatMessage, opts llm.Options) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(messages),
		Model:    cfg.ChatModel,
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(cfg.MaxTokens)
	}
	if cfg.TopP > 0 {
		params.TopP = openai.Float(cfg.TopP)
	}

	if tools := llm.FilterTools(opts.Tools); len(tools) > 0 {
		params.Tools = make([]openai.ChatCompletionToolParam, len(tools))
		for i, t := range tools {
			params.Tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  t.Parameters,
				},
			}
		}
	}

	if opts.ResponseFormat != nil && opts.ResponseFormat.Type == "json_object" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// parseResponse extracts first-choice content, decoded tool calls, finish
// reason and token usage from a vendor response.
func parseResponse(resp *openai.ChatCompletion) *llm.Response {
	if len(resp.Choices) == 0 {
		return llm.ErrorResponse("openai returned no choices")
	}
	ch0 := resp.Choices[0]

	toolCalls, err := decodeToolCalls(ch0.Message.ToolCalls)
	if err != nil {
		return llm.ErrorResponse("decode tool call arguments: %v", err)
	}

	content := ch0.Message.Content
	if content == "" {
		content = llm.NoResponse
	}

	return &llm.Response{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: string(ch0.FinishReason),
		SendTokens:   int(resp.Usage.PromptTokens),
		RecvTokens:   int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
		Status:       llm.StatusSuccess,
	}
}

// decodeToolCalls converts vendor tool calls to the canonical shape, decoding
// each JSON argument payload. A malformed payload is a hard decode error,
// never silently coerced to empty arguments.
func decodeToolCalls(calls []openai.ChatCompletionMessageToolCall) ([]core.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]core.ToolCall, len(calls))
	for i, tc := range calls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool call %s (%s): %w", tc.ID, tc.Function.Name, err)
			}
		}
		out[i] = core.ToolCall{
			ID:   tc.ID,
			Type: core.ToolCallType,
			Tool: core.ToolTarget{Name: tc.Function.Name, Arguments: args},
		}
	}
	return out, nil
}
