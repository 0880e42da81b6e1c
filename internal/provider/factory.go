package provider

import (
	"fmt"
	"os"

	"quorum/internal/config"
	"quorum/internal/logging"
)

// Factory builds clients for named providers using the providers section of
// the config. Request-level options override config values.
type Factory struct {
	cfg *config.ProvidersConfig
}

// NewFactory creates a factory over the given providers config.
func NewFactory(cfg *config.ProvidersConfig) *Factory {
	return &Factory{cfg: cfg}
}

// New builds a client for the named provider. opts fields left zero are
// filled from config and defaults.
func (f *Factory) New(name string, opts Options) (Client, error) {
	opts.APIKey = ResolveCredential(name, opts.APIKey, f.cfg)

	switch name {
	case ProviderAnthropic:
		if f.cfg != nil {
			if opts.Model == "" {
				opts.Model = f.cfg.Anthropic.Model
			}
			if opts.BaseURL == "" {
				opts.BaseURL = f.cfg.Anthropic.BaseURL
			}
		}
		logging.ProviderDebug("factory: anthropic model=%s", opts.Model)
		return NewAnthropicClient(opts), nil

	case ProviderOpenAI:
		if f.cfg != nil {
			if opts.Model == "" {
				opts.Model = f.cfg.OpenAI.Model
			}
			if opts.BaseURL == "" {
				opts.BaseURL = f.cfg.OpenAI.BaseURL
			}
		}
		logging.ProviderDebug("factory: openai model=%s", opts.Model)
		return NewOpenAIClient(opts), nil

	case ProviderGemini:
		if f.cfg != nil {
			if opts.Model == "" {
				opts.Model = f.cfg.Gemini.Model
			}
			if opts.BaseURL == "" {
				opts.BaseURL = f.cfg.Gemini.BaseURL
			}
		}
		logging.ProviderDebug("factory: gemini model=%s", opts.Model)
		return NewGeminiClient(opts), nil

	case ProviderGateway:
		if opts.BaseURL == "" {
			opts.BaseURL = os.Getenv("QUORUM_GATEWAY_URL")
		}
		if opts.BaseURL == "" && f.cfg != nil {
			opts.BaseURL = f.cfg.Gateway.BaseURL
		}
		if f.cfg != nil && opts.Model == "" {
			opts.Model = f.cfg.Gateway.Model
		}
		logging.ProviderDebug("factory: gateway url=%s model=%s", opts.BaseURL, opts.Model)
		return NewGatewayClient(opts)

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
