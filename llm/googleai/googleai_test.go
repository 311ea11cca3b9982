package googleai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studioloop/maestro/llm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultAPIBase, cfg.APIBase)
	assert.Equal(t, "gemini-2.0-flash", cfg.ChatModel)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("GOOGLEAI_API_KEY", "")
	_, err := New()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLEAI_API_KEY")
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("GOOGLEAI_API_KEY", "gk-test")
	t.Setenv("GOOGLEAI_CHAT_MODEL", "gemini-2.5-pro")

	p, err := New()
	assert.NoError(t, err)
	info := p.Info()
	assert.Equal(t, "gemini-2.5-pro", info.Name)
	assert.Equal(t, string(llm.ProviderGoogleAI), info.Provider)
	assert.True(t, info.SupportsTools)
}
