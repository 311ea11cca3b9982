// Package anthropic provides a llm.Provider implementation using the
// Anthropic Messages API. System messages are lifted into the request's
// system blocks and tool results are delivered as user-role tool_result
// blocks, per the Messages API wire format.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
)

// Options configure the Anthropic provider adapter.
type Options struct {
	Config llm.Config
}

// DefaultConfig returns the adapter's baseline configuration before
// environment overrides.
func DefaultConfig() llm.Config {
	return llm.Config{
		ChatModel:   string(anthropic.ModelClaude3_5Sonnet20241022),
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// Provider wraps the Anthropic Messages API behind the generic llm.Provider
// interface.
type Provider struct {
	client *anthropic.Client
	cfg    llm.Config
}

// New creates a new Anthropic provider from ANTHROPIC_* environment
// configuration plus optional overrides. A missing API key fails
// construction.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{Config: llm.ConfigFromEnv(llm.EnvPrefixAnthropic, DefaultConfig())}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(llm.EnvPrefixAnthropic); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.Config.APIKey)}
	if opts.Config.APIBase != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.Config.APIBase))
	}
	if opts.Config.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Config.Timeout))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, cfg: opts.Config}, nil
}

// NewFromClient creates a provider from an existing client, bypassing
// environment configuration. Intended for tests and custom transports.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
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

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.ChatModel),
		Messages:  buildMessages(messages),
		MaxTokens: p.cfg.MaxTokens,
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(p.cfg.Temperature)
	}
	if p.cfg.TopP > 0 {
		params.TopP = anthropic.Float(p.cfg.TopP)
	}
	if systemBlocks := extractSystemBlocks(messages); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if tools := llm.FilterTools(opts.Tools); len(tools) > 0 {
		params.Tools = buildTools(tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return llm.ErrorResponse("anthropic api error: %v", err)
	}
	return parseResponse(resp)
}

// Info returns metadata describing this Anthropic provider implementation.
func (p *Provider) Info() llm.Info {
	return llm.Info{Name: p.cfg.ChatModel, Provider: string(llm.ProviderAnthropic), SupportsTools: true}
}

// buildMessages converts canonical chat messages into Anthropic message
// params. System messages are skipped here (handled by extractSystemBlocks)
// and tool-role messages become user messages carrying a tool_result block.
func buildMessages(messages []core.ChatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Tool.Arguments, tc.Tool.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return out
}

// extractSystemBlocks lifts system-role messages into system text blocks.
func extractSystemBlocks(messages []core.ChatMessage) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// buildTools converts canonical tool specs into Anthropic tool params. The
// declarations arrive as JSON-schema objects; properties and required are
// copied into the input schema.
func buildTools(tools []core.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			schema.Required = requiredNames(t.Parameters["required"])
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
	}
	return out
}

// requiredNames normalizes a schema's required list, which may arrive as
// []string or as []any after a JSON round trip.
func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		var names []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// parseResponse flattens the response content blocks into text plus decoded
// tool calls, and maps stop reason and token usage.
func parseResponse(resp *anthropic.Message) *llm.Response {
	var (
		text      strings.Builder
		toolCalls []core.ToolCall
	)

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				text.WriteString(textBlock.Text)
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				raw, err := json.Marshal(toolBlock.Input)
				if err == nil {
					err = json.Unmarshal(raw, &args)
				}
				if err != nil {
					return llm.ErrorResponse("decode tool call arguments: tool call %s (%s): %v",
						toolBlock.ID, toolBlock.Name, err)
				}
			}
			toolCalls = append(toolCalls, core.ToolCall{
				ID:   toolBlock.ID,
				Type: core.ToolCallType,
				Tool: core.ToolTarget{Name: toolBlock.Name, Arguments: args},
			})
		}
	}

	content := text.String()
	if content == "" {
		content = llm.NoResponse
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	send := int(resp.Usage.InputTokens)
	recv := int(resp.Usage.OutputTokens)

	return &llm.Response{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		SendTokens:   send,
		RecvTokens:   recv,
		TotalTokens:  send + recv,
		Status:       llm.StatusSuccess,
	}
}
