package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ProviderType identifies one of the supported backend vendors. The set is
// closed; selection happens via configuration, not runtime type inspection.
type ProviderType string

// Supported provider types.
const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogleAI  ProviderType = "googleai"
)

// Environment variable prefixes per provider.
const (
	EnvPrefixOpenAI    = "OPENAI_"
	EnvPrefixAnthropic = "ANTHROPIC_"
	EnvPrefixGoogleAI  = "GOOGLEAI_"
)

// Config holds the recognized settings for one provider adapter. Adapters are
// constructed from a validated Config; a missing API key is a fatal
// configuration error raised before any call is attempted.
type Config struct {
	APIKey      string
	APIBase     string
	ChatModel   string
	MaxTokens   int64
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

// Validate reports a configuration error for an unusable Config. prefix is
// used to name the offending environment variable in the message.
func (c *Config) Validate(prefix string) error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key must not be empty: set the %sAPI_KEY environment variable", prefix)
	}
	return nil
}

// ConfigFromEnv reads the fixed recognized key set (API_KEY, API_BASE,
// CHAT_MODEL, MAX_TOKENS, TEMPERATURE, TOP_P, TIMEOUT) under the given prefix,
// starting from the supplied defaults. Unset variables leave the default in
// place; TIMEOUT is interpreted as seconds.
func ConfigFromEnv(prefix string, defaults Config) Config {
	cfg := defaults
	if v := os.Getenv(prefix + "API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(prefix + "API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv(prefix + "CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv(prefix + "MAX_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv(prefix + "TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv(prefix + "TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TopP = f
		}
	}
	if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}
	return cfg
}
