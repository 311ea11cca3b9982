// Package maestro provides a high-level façade over the conversational
// engine and its services (session store, agent registry, provider adapters,
// realtime gateway). Most applications interact with this package by:
//  1. Creating a Maestro via New() (optionally overriding the default
//     in-memory store or the environment-selected provider)
//  2. Registering one or more agents
//  3. Running turns with Chat, or mounting WSHandler for realtime clients
//
// The façade delegates turn orchestration to chat.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable store and a
// structured logger.
package maestro

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/studioloop/maestro/agent"
	"github.com/studioloop/maestro/chat"
	"github.com/studioloop/maestro/core"
	"github.com/studioloop/maestro/dispatch"
	"github.com/studioloop/maestro/gateway"
	"github.com/studioloop/maestro/llm"
	"github.com/studioloop/maestro/llm/anthropic"
	"github.com/studioloop/maestro/llm/googleai"
	"github.com/studioloop/maestro/llm/openai"
	"github.com/studioloop/maestro/logging"
	"github.com/studioloop/maestro/store"
)

// EnvDefaultProvider selects the provider when none is supplied explicitly.
const EnvDefaultProvider = "DEFAULT_LLM"

// Options configure a Maestro instance.
type Options struct {
	// Provider handles model completions. Nil selects one from the
	// DEFAULT_LLM environment variable (openai, anthropic or googleai;
	// openai when unset).
	Provider llm.Provider

	// Store persists sessions, conversations and context. Defaults to the
	// in-memory store.
	Store core.SessionStore

	// SystemPrompt seeds every turn; rendered with session variables.
	SystemPrompt string

	// MaxRoundTrips caps model completions per turn.
	MaxRoundTrips int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Maestro is the high-level façade aggregating the engine and its services.
type Maestro struct {
	opts     Options
	registry *agent.Registry
	engine   *chat.Engine
	hub      *gateway.Hub
}

// New creates a Maestro instance with optional overrides. An unset store is
// initialized in-memory; an unset provider is resolved from the environment.
func New(optFns ...func(o *Options)) (*Maestro, error) {
	opts := Options{
		Store:         store.NewInMemoryStore(),
		SystemPrompt:  chat.DefaultSystemPrompt,
		MaxRoundTrips: dispatch.DefaultMaxRoundTrips,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Provider == nil {
		provider, err := ProviderFromEnv()
		if err != nil {
			return nil, err
		}
		opts.Provider = provider
	}

	registry := agent.NewRegistry()
	dispatcher := dispatch.New(opts.Provider, registry, func(o *dispatch.Options) {
		o.MaxRoundTrips = opts.MaxRoundTrips
		o.Logger = opts.Logger
	})
	hub := gateway.NewHub(opts.Logger)
	engine := chat.New(opts.Store, dispatcher, func(o *chat.Options) {
		o.SystemPrompt = opts.SystemPrompt
		o.Emitter = hub
		o.Logger = opts.Logger
	})

	return &Maestro{
		opts:     opts,
		registry: registry,
		engine:   engine,
		hub:      hub,
	}, nil
}

// ProviderFromEnv builds the provider named by DEFAULT_LLM. The name is a
// closed set; anything outside it is an error rather than a fallback.
func ProviderFromEnv() (llm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(os.Getenv(EnvDefaultProvider)))
	switch llm.ProviderType(name) {
	case "", llm.ProviderOpenAI:
		return openai.New()
	case llm.ProviderAnthropic:
		return anthropic.New()
	case llm.ProviderGoogleAI:
		return googleai.New()
	default:
		return nil, fmt.Errorf("maestro: unknown provider %q", name)
	}
}

// RegisterAgent adds an agent to the registry.
func (m *Maestro) RegisterAgent(a agent.Agent) error { return m.registry.Register(a) }

// Chat runs one conversation turn and returns the assistant's output message.
func (m *Maestro) Chat(ctx context.Context, input chat.TurnInput) (*core.ConversationMessage, error) {
	return m.engine.Turn(ctx, input)
}

// Store exposes the configured session store.
func (m *Maestro) Store() core.SessionStore { return m.opts.Store }

// Registry exposes the agent registry.
func (m *Maestro) Registry() *agent.Registry { return m.registry }

// Hub exposes the realtime hub for custom delivery integrations.
func (m *Maestro) Hub() *gateway.Hub { return m.hub }

// WSHandler returns the websocket endpoint serving realtime chat.
func (m *Maestro) WSHandler() http.Handler {
	return gateway.NewHandler(m.hub, m.engine, m.opts.Logger)
}
