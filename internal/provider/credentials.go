package provider

import (
	"os"

	"quorum/internal/config"
)

// envVarFor maps a provider to its conventional API key environment variable.
var envVarFor = map[string]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderGateway:   "QUORUM_API_KEY",
}

// ResolveCredential finds the API key for a provider. Resolution order:
// explicit key, provider env var, generic QUORUM_API_KEY, config file.
// Returns empty when nothing is configured.
func ResolveCredential(name, explicit string, cfg *config.ProvidersConfig) string {
	if explicit != "" {
		return explicit
	}
	if envVar, ok := envVarFor[name]; ok {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	if name != ProviderGateway {
		if key := os.Getenv("QUORUM_API_KEY"); key != "" {
			return key
		}
	}
	if cfg == nil {
		return ""
	}
	switch name {
	case ProviderAnthropic:
		return cfg.Anthropic.APIKey
	case ProviderOpenAI:
		return cfg.OpenAI.APIKey
	case ProviderGemini:
		return cfg.Gemini.APIKey
	case ProviderGateway:
		return cfg.Gateway.APIKey
	}
	return ""
}

// HasCredential reports whether a provider is usable. The gateway needs a
// base URL rather than a key; the others need a key.
func HasCredential(name string, cfg *config.ProvidersConfig) bool {
	if name == ProviderGateway {
		if os.Getenv("QUORUM_GATEWAY_URL") != "" {
			return true
		}
		return cfg != nil && cfg.Gateway.BaseURL != ""
	}
	return ResolveCredential(name, "", cfg) != ""
}
