// Package googleai provides a llm.Provider implementation for Google Gemini
// models, served through Gemini's OpenAI-compatible chat completions
// endpoint. Request building and response parsing are delegated to the
// OpenAI adapter; this package supplies the endpoint, model defaults and the
// Gemini-specific message constraints.
package googleai

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/llm"
	"github.com/studioloop/maestro/llm/openai"
)

// DefaultAPIBase is Gemini's OpenAI-compatible chat completions endpoint.
const DefaultAPIBase = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Options configure the Google AI provider adapter.
type Options struct {
	Config llm.Config
}

// DefaultConfig returns the adapter's baseline configuration before
// environment overrides.
func DefaultConfig() llm.Config {
	return llm.Config{
		APIBase:     DefaultAPIBase,
		ChatModel:   "gemini-2.0-flash",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// Provider serves Gemini models behind the generic llm.Provider interface.
type Provider struct {
	inner *openai.Provider
	cfg   llm.Config
}

// New creates a new Google AI provider from GOOGLEAI_* environment
// configuration plus optional overrides. A missing API key fails
// construction.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{Config: llm.ConfigFromEnv(llm.EnvPrefixGoogleAI, DefaultConfig())}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(llm.EnvPrefixGoogleAI); err != nil {
		return nil, fmt.Errorf("googleai: %w", err)
	}
	if opts.Config.APIBase == "" {
		opts.Config.APIBase = DefaultAPIBase
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.Config.APIKey),
		option.WithBaseURL(opts.Config.APIBase),
	}
	if opts.Config.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Config.Timeout))
	}
	client := sdk.NewClient(clientOpts...)

	cfg := opts.Config
	inner := openai.NewFromClient(&client, func(o *openai.Options) { o.Config = cfg })

	return &Provider{inner: inner, cfg: cfg}, nil
}

// ChatCompletion implements llm.Provider. A leading system message is
// dropped before dispatch; the compatibility endpoint rejects conversations
// that open with one.
func (p *Provider) ChatCompletion(
	ctx context.Context,
	messages []core.ChatMessage,
	optFns ...func(o *llm.Options),
) *llm.Response {
	if len(messages) > 0 && messages[0].Role == core.RoleSystem {
		messages = messages[1:]
	}
	return p.inner.ChatCompletion(ctx, messages, optFns...)
}

// Info returns metadata describing this Google AI provider implementation.
func (p *Provider) Info() llm.Info {
	return llm.Info{Name: p.cfg.ChatModel, Provider: string(llm.ProviderGoogleAI), SupportsTools: true}
}
