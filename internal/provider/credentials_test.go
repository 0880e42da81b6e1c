package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quorum/internal/config"
)

func TestResolveCredential(t *testing.T) {
	clearProviderEnv(t)

	cfg := &config.ProvidersConfig{
		Anthropic: config.ProviderConfig{APIKey: "file-key"},
	}

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		assert.Equal(t, "explicit-key", ResolveCredential(ProviderAnthropic, "explicit-key", cfg))
	})

	t.Run("provider env var beats config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "env-key")
		assert.Equal(t, "env-key", ResolveCredential(ProviderAnthropic, "", cfg))
	})

	t.Run("generic key covers unset providers", func(t *testing.T) {
		t.Setenv("QUORUM_API_KEY", "generic-key")
		assert.Equal(t, "generic-key", ResolveCredential(ProviderOpenAI, "", cfg))
	})

	t.Run("config file is the last resort", func(t *testing.T) {
		assert.Equal(t, "file-key", ResolveCredential(ProviderAnthropic, "", cfg))
	})

	t.Run("nothing configured yields empty", func(t *testing.T) {
		assert.Empty(t, ResolveCredential(ProviderGemini, "", cfg))
		assert.Empty(t, ResolveCredential(ProviderGemini, "", nil))
	})
}

func TestHasCredential(t *testing.T) {
	clearProviderEnv(t)

	t.Run("key providers need a key", func(t *testing.T) {
		assert.False(t, HasCredential(ProviderOpenAI, &config.ProvidersConfig{}))
		assert.True(t, HasCredential(ProviderOpenAI, &config.ProvidersConfig{
			OpenAI: config.ProviderConfig{APIKey: "k"},
		}))
	})

	t.Run("gateway needs a base url, not a key", func(t *testing.T) {
		assert.False(t, HasCredential(ProviderGateway, &config.ProvidersConfig{
			Gateway: config.ProviderConfig{APIKey: "k"},
		}))
		assert.True(t, HasCredential(ProviderGateway, &config.ProvidersConfig{
			Gateway: config.ProviderConfig{BaseURL: "http://localhost:8080"},
		}))
	})
}
